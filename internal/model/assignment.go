package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ── 作业状态 ──

const (
	AssignmentStatusCreated  = "created"
	AssignmentStatusPushed   = "pushed"
	AssignmentStatusReleased = "released"
	AssignmentStatusComplete = "complete"
)

// ── 作业类型 ──

const (
	AssignmentTypeUser  = "user"
	AssignmentTypeGroup = "group"
)

// ── 自动批改模式 ──

const (
	GradingUnassisted = "unassisted"
	GradingAuto       = "auto"
	GradingFullAuto   = "full_auto"
)

// LatePeriod 迟交阶梯：距截止时间的累计窗口（ISO-8601 时长）与对应计分系数
type LatePeriod struct {
	Period  string  `json:"period"`  // 如 "P3D"、"PT12H"
	Scaling float64 `json:"scaling"` // 0.0 ~ 1.0
}

// AssignmentSettings 作业策略设置 — JSONB 列的自定义类型
// 实现 GORM Scanner/Valuer 接口
type AssignmentSettings struct {
	LateSubmission []LatePeriod `json:"late_submission,omitempty"`
}

// Scan 将 JSONB 文本解析为 AssignmentSettings
func (s *AssignmentSettings) Scan(src interface{}) error {
	if src == nil {
		*s = AssignmentSettings{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("AssignmentSettings.Scan: unsupported type %T", src)
	}
	if len(b) == 0 {
		*s = AssignmentSettings{}
		return nil
	}
	return json.Unmarshal(b, s)
}

// Value 将 AssignmentSettings 序列化为 JSONB 文本
func (s AssignmentSettings) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Assignment 作业表 — 对应 assignments
// 同一课程内未删除作业名称唯一；status 与 deleted 共同约束可变性
type Assignment struct {
	ID               uint               `gorm:"primaryKey"                 json:"id"`
	Name             string             `gorm:"type:varchar(255);not null" json:"name"`
	LectureID        uint               `gorm:"not null;index"             json:"lecture_id"`
	DueDate          *time.Time         `json:"due_date,omitempty"`
	Points           float64            `gorm:"not null;default:0"         json:"points"`
	Status           string             `gorm:"type:varchar(16);not null;default:'created'"    json:"status"`
	Type             string             `gorm:"type:varchar(16);not null;default:'user'"       json:"type"`
	AutomaticGrading string             `gorm:"type:varchar(16);not null;default:'unassisted'" json:"automatic_grading"`
	MaxSubmissions   *int               `json:"max_submissions,omitempty"`
	AllowFiles       bool               `gorm:"not null;default:false"     json:"allow_files"`
	Properties       string             `gorm:"type:text"                  json:"-"` // 不透明的 gradebook JSON，单独接口读写
	Settings         AssignmentSettings `gorm:"type:jsonb"                 json:"settings"`
	Deleted          string             `gorm:"type:varchar(16);not null;default:'active'" json:"deleted"`
	BaseModel

	// 关联
	Lecture *Lecture `gorm:"foreignKey:LectureID;references:ID" json:"lecture,omitempty"`
}

// TableName 指定表名
func (Assignment) TableName() string { return "assignments" }

// [自证通过] internal/model/assignment.go
