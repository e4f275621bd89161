package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"grader-service/internal/dto"
	"grader-service/internal/gitrepo"
	"grader-service/internal/lti"
	"grader-service/internal/model"
	"grader-service/internal/repository"
	apperrors "grader-service/pkg/errors"
)

// SubmissionListOptions 提交列表查询选项
type SubmissionListOptions struct {
	Filter            repository.SubmissionFilter
	InstructorVersion bool // true 时返回全部用户的提交（仅 staff）
}

// SubmissionService 提交服务接口
type SubmissionService interface {
	List(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID uint, opts SubmissionListOptions) ([]dto.SubmissionResponse, error)
	// Create 显式登记一次提交（git push 路径走 CreateFromPush）
	Create(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID uint, req *dto.CreateSubmissionRequest) (*dto.SubmissionResponse, error)
	// CreateFromPush 在 receive-pack 成功后登记提交并按批改模式触发流水线；
	// 登记规则与 Create 同口径（学生要求已发布、受最大提交次数约束）
	CreateFromPush(ctx context.Context, lecture *model.Lecture, assignment *model.Assignment, username, commitHash string, scope model.Scope) (*model.Submission, error)
	Get(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID, submissionID uint) (*dto.SubmissionResponse, error)
	// Update 教师修改人工批改状态与分数
	Update(ctx context.Context, lectureID, assignmentID, submissionID uint, req *dto.UpdateSubmissionRequest) (*dto.SubmissionResponse, error)
	Logs(ctx context.Context, lectureID, assignmentID, submissionID uint) (*dto.SubmissionLogsResponse, error)
	GetProperties(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID, submissionID uint) (string, error)
	// PutProperties 写入成绩册并重算分数；触发反馈/人工状态降级
	PutProperties(ctx context.Context, lectureID, assignmentID, submissionID uint, raw string) (*dto.SubmissionResponse, error)
	// MarkEdited 为提交建立 edit 仓库供教师改动，提交进入编辑态
	MarkEdited(ctx context.Context, lectureID, assignmentID, submissionID uint) (*dto.SubmissionResponse, error)
	// SyncLTI 将作业的最新提交分数同步到 LMS 成绩册
	SyncLTI(ctx context.Context, lectureID, assignmentID uint) (*dto.LTISyncResponse, error)
}

// GitManager 提交服务依赖的仓库操作子集
type GitManager interface {
	Path(loc gitrepo.Location) string
	EnsureExists(ctx context.Context, loc gitrepo.Location) (string, error)
	CommitHashExists(ctx context.Context, path, hash string) bool
	CopyCommit(ctx context.Context, srcRepo, commit, dstRepo string) error
}

type submissionService struct {
	repo    *repository.Repository
	git     GitManager
	grading GradingService
	lti     lti.Plugin
	logger  *zap.Logger
}

// NewSubmissionService 创建提交服务实例
func NewSubmissionService(repo *repository.Repository, git GitManager, grading GradingService, ltiPlugin lti.Plugin, logger *zap.Logger) SubmissionService {
	return &submissionService{repo: repo, git: git, grading: grading, lti: ltiPlugin, logger: logger}
}

func (s *submissionService) List(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID uint, opts SubmissionListOptions) ([]dto.SubmissionResponse, error) {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return nil, err
	}
	if scope == model.ScopeStudent {
		if !studentVisible(assignment) {
			return nil, fmt.Errorf("作业 %d: %w", assignmentID, apperrors.ErrNotFound)
		}
		if opts.InstructorVersion {
			return nil, fmt.Errorf("instructor-version 需要 tutor 以上权限: %w", apperrors.ErrForbidden)
		}
	}

	q := repository.SubmissionQuery{
		AssignmentID: assignmentID,
		Filter:       opts.Filter,
	}
	if !opts.InstructorVersion {
		q.Username = s.submissionOwner(ctx, ident.Username, assignment)
	}

	submissions, err := s.repo.Submission.List(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]dto.SubmissionResponse, 0, len(submissions))
	for i := range submissions {
		out = append(out, toSubmissionResponse(&submissions[i]))
	}
	return out, nil
}

func (s *submissionService) Create(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID uint, req *dto.CreateSubmissionRequest) (*dto.SubmissionResponse, error) {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return nil, err
	}
	lecture, err := s.repo.Lecture.GetByID(ctx, lectureID)
	if err != nil {
		return nil, err
	}

	if scope == model.ScopeStudent {
		// 学生只能向已发布的作业提交；其余状态按不存在处理
		if assignment.Status != model.AssignmentStatusReleased {
			return nil, fmt.Errorf("作业 %d: %w", assignmentID, apperrors.ErrNotFound)
		}
	} else if assignment.Status == model.AssignmentStatusComplete {
		return nil, fmt.Errorf("作业已结束，不再接受提交: %w", apperrors.ErrConflict)
	}

	owner := s.submissionOwner(ctx, ident.Username, assignment)

	// 全零哨兵哈希跳过可达性校验，仅 staff 可用（替无仓库的学生登记）
	if req.CommitHash == model.ZeroCommitHash {
		if scope == model.ScopeStudent {
			return nil, fmt.Errorf("非法的提交哈希: %w", apperrors.ErrValidation)
		}
	} else {
		loc := gitrepo.Location{
			LectureCode:  lecture.Code,
			AssignmentID: assignmentID,
			Type:         gitrepo.RepoAssignment.Resolve(assignment.Type),
			Owner:        owner,
		}
		if !s.git.CommitHashExists(ctx, s.git.Path(loc), req.CommitHash) {
			return nil, fmt.Errorf("提交哈希在仓库中不可达: %w", apperrors.ErrValidation)
		}
	}

	now := time.Now()
	scaling, ok, err := LateScaling(assignment, now)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrValidation)
	}
	if !ok {
		if scope == model.ScopeStudent {
			return nil, fmt.Errorf("已超出全部迟交窗口: %w", apperrors.ErrConflict)
		}
		scaling = 0 // staff 补登记永远可行，超窗计 0 分
	}

	if scope == model.ScopeStudent && assignment.MaxSubmissions != nil {
		count, err := s.repo.Submission.CountByUser(ctx, assignmentID, owner)
		if err != nil {
			return nil, err
		}
		if count >= int64(*assignment.MaxSubmissions) {
			return nil, fmt.Errorf("已达到最大提交次数 %d: %w", *assignment.MaxSubmissions, apperrors.ErrConflict)
		}
	}

	submission := &model.Submission{
		AssignmentID:   assignmentID,
		Username:       owner,
		Date:           now,
		CommitHash:     req.CommitHash,
		AutoStatus:     model.AutoStatusNotGraded,
		ManualStatus:   model.ManualStatusNotGraded,
		FeedbackStatus: model.FeedbackStatusNotGenerated,
		ScoreScaling:   scaling,
	}
	if err := s.repo.Submission.Create(ctx, submission); err != nil {
		return nil, err
	}

	s.logger.Info("已登记提交",
		zap.Uint("submission_id", submission.ID),
		zap.Uint("assignment_id", assignmentID),
		zap.String("username", owner),
		zap.Float64("score_scaling", scaling),
	)

	// 批改流水线失败不回滚已创建的提交，只记日志
	if err := s.grading.DispatchOnCreate(ctx, submission, assignment, ident.Username); err != nil {
		s.logger.Warn("提交创建后触发批改失败",
			zap.Uint("submission_id", submission.ID),
			zap.Error(err),
		)
	}

	resp := toSubmissionResponse(submission)
	return &resp, nil
}

func (s *submissionService) CreateFromPush(ctx context.Context, lecture *model.Lecture, assignment *model.Assignment, username, commitHash string, scope model.Scope) (*model.Submission, error) {
	// push 落库前执行与显式登记相同的准入规则；
	// 被拒绝的 push 留在仓库里但不产生提交记录
	if scope == model.ScopeStudent {
		if assignment.Status != model.AssignmentStatusReleased {
			return nil, fmt.Errorf("作业 %d: %w", assignment.ID, apperrors.ErrNotFound)
		}
		if assignment.MaxSubmissions != nil {
			count, err := s.repo.Submission.CountByUser(ctx, assignment.ID, username)
			if err != nil {
				return nil, err
			}
			if count >= int64(*assignment.MaxSubmissions) {
				return nil, fmt.Errorf("已达到最大提交次数 %d: %w", *assignment.MaxSubmissions, apperrors.ErrConflict)
			}
		}
	} else if assignment.Status == model.AssignmentStatusComplete {
		return nil, fmt.Errorf("作业已结束，不再接受提交: %w", apperrors.ErrConflict)
	}

	now := time.Now()
	scaling, ok, err := LateScaling(assignment, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// push 已经被接受，提交照常登记，只是计 0 分
		scaling = 0
	}

	submission := &model.Submission{
		AssignmentID:   assignment.ID,
		Username:       username,
		Date:           now,
		CommitHash:     commitHash,
		AutoStatus:     model.AutoStatusNotGraded,
		ManualStatus:   model.ManualStatusNotGraded,
		FeedbackStatus: model.FeedbackStatusNotGenerated,
		ScoreScaling:   scaling,
	}
	if err := s.repo.Submission.Create(ctx, submission); err != nil {
		return nil, err
	}

	s.logger.Info("push 后已登记提交",
		zap.Uint("submission_id", submission.ID),
		zap.String("lecture_code", lecture.Code),
		zap.String("username", username),
		zap.String("commit_hash", commitHash),
	)

	if err := s.grading.DispatchOnCreate(ctx, submission, assignment, username); err != nil {
		s.logger.Warn("push 后触发批改失败",
			zap.Uint("submission_id", submission.ID),
			zap.Error(err),
		)
	}
	return submission, nil
}

func (s *submissionService) Get(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID, submissionID uint) (*dto.SubmissionResponse, error) {
	submission, err := submissionInAssignment(ctx, s.repo, lectureID, assignmentID, submissionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, ident, scope, submission); err != nil {
		return nil, err
	}
	resp := toSubmissionResponse(submission)
	return &resp, nil
}

func (s *submissionService) Update(ctx context.Context, lectureID, assignmentID, submissionID uint, req *dto.UpdateSubmissionRequest) (*dto.SubmissionResponse, error) {
	submission, err := submissionInAssignment(ctx, s.repo, lectureID, assignmentID, submissionID)
	if err != nil {
		return nil, err
	}

	if req.ManualStatus != nil {
		submission.ManualStatus = *req.ManualStatus
	}
	if req.Score != nil {
		submission.Score = req.Score
	}
	if err := s.repo.Submission.Update(ctx, submission); err != nil {
		return nil, err
	}
	resp := toSubmissionResponse(submission)
	return &resp, nil
}

func (s *submissionService) Logs(ctx context.Context, lectureID, assignmentID, submissionID uint) (*dto.SubmissionLogsResponse, error) {
	submission, err := submissionInAssignment(ctx, s.repo, lectureID, assignmentID, submissionID)
	if err != nil {
		return nil, err
	}
	return &dto.SubmissionLogsResponse{
		SubmissionID: submission.ID,
		Logs:         submission.Logs,
	}, nil
}

func (s *submissionService) GetProperties(ctx context.Context, ident *Identity, scope model.Scope, lectureID, assignmentID, submissionID uint) (string, error) {
	submission, err := submissionInAssignment(ctx, s.repo, lectureID, assignmentID, submissionID)
	if err != nil {
		return "", err
	}
	if err := s.checkOwnership(ctx, ident, scope, submission); err != nil {
		return "", err
	}

	props, err := s.repo.Submission.GetProperties(ctx, submissionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("提交 %d 尚无成绩册属性: %w", submissionID, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return props.Properties, nil
}

// PutProperties 成绩册是唯一权威分数来源：写入后整体重算分数
// JSON 非法时在任何落库之前拒绝（全有或全无）
func (s *submissionService) PutProperties(ctx context.Context, lectureID, assignmentID, submissionID uint, raw string) (*dto.SubmissionResponse, error) {
	submission, err := submissionInAssignment(ctx, s.repo, lectureID, assignmentID, submissionID)
	if err != nil {
		return nil, err
	}

	gb, err := model.ParseGradebook(raw)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrValidation)
	}

	if err := s.repo.Submission.SaveProperties(ctx, &model.SubmissionProperties{
		SubmissionID: submissionID,
		Properties:   raw,
	}); err != nil {
		return nil, err
	}

	gradingScore := gb.Score()
	score := submission.ScoreScaling * gradingScore
	submission.GradingScore = &gradingScore
	submission.Score = &score

	// 属性变更使已生成的反馈过期、使人工批改结果进入编辑态
	if submission.FeedbackStatus == model.FeedbackStatusGenerated {
		submission.FeedbackStatus = model.FeedbackStatusOutdated
	}
	if submission.ManualStatus == model.ManualStatusManuallyGraded {
		submission.ManualStatus = model.ManualStatusBeingEdited
	}

	if err := s.repo.Submission.Update(ctx, submission); err != nil {
		return nil, err
	}
	resp := toSubmissionResponse(submission)
	return &resp, nil
}

func (s *submissionService) MarkEdited(ctx context.Context, lectureID, assignmentID, submissionID uint) (*dto.SubmissionResponse, error) {
	submission, err := submissionInAssignment(ctx, s.repo, lectureID, assignmentID, submissionID)
	if err != nil {
		return nil, err
	}
	lecture, err := s.repo.Lecture.GetByID(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	assignment := submission.Assignment

	// 将提交内容复制进专属 edit 仓库，教师的改动不触碰学生仓库
	editLoc := gitrepo.Location{
		LectureCode:  lecture.Code,
		AssignmentID: assignmentID,
		Type:         gitrepo.RepoEdit,
		SubmissionID: submissionID,
	}
	editPath, err := s.git.EnsureExists(ctx, editLoc)
	if err != nil {
		return nil, fmt.Errorf("创建 edit 仓库失败: %w", err)
	}

	srcLoc := gitrepo.Location{
		LectureCode:  lecture.Code,
		AssignmentID: assignmentID,
		Type:         gitrepo.RepoAssignment.Resolve(assignment.Type),
		Owner:        submission.Username,
	}
	if err := s.git.CopyCommit(ctx, s.git.Path(srcLoc), submission.CommitHash, editPath); err != nil {
		return nil, fmt.Errorf("复制提交内容到 edit 仓库失败: %w", err)
	}

	submission.Edited = true
	submission.ManualStatus = model.ManualStatusBeingEdited
	if err := s.repo.Submission.Update(ctx, submission); err != nil {
		return nil, err
	}

	s.logger.Info("提交已进入编辑态",
		zap.Uint("submission_id", submissionID),
		zap.String("edit_repo", editPath),
	)
	resp := toSubmissionResponse(submission)
	return &resp, nil
}

// SyncLTI 以每用户最新提交为同步对象；插件未启用时返回空统计
func (s *submissionService) SyncLTI(ctx context.Context, lectureID, assignmentID uint) (*dto.LTISyncResponse, error) {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return nil, err
	}
	lecture, err := s.repo.Lecture.GetByID(ctx, lectureID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.repo.Submission.List(ctx, repository.SubmissionQuery{
		AssignmentID: assignmentID,
		Filter:       repository.FilterLatest,
	})
	if err != nil {
		return nil, err
	}

	if !s.lti.Enabled(lecture, assignment, submissions, false) {
		return &dto.LTISyncResponse{}, nil
	}

	result, err := s.lti.Sync(ctx, lecture, assignment, submissions)
	if err != nil {
		// 同步失败不是调用方的错误，返回零统计并记日志
		s.logger.Warn("LTI 同步失败",
			zap.Uint("assignment_id", assignmentID),
			zap.Error(err),
		)
		return &dto.LTISyncResponse{}, nil
	}
	return &dto.LTISyncResponse{
		SyncableUsers: result.SyncableUsers,
		SyncedUsers:   result.SyncedUsers,
	}, nil
}

// ── 内部工具 ──

// submissionOwner group 作业的提交属主是小组名，user 作业是用户名
func (s *submissionService) submissionOwner(ctx context.Context, username string, assignment *model.Assignment) string {
	if assignment.Type != model.AssignmentTypeGroup {
		return username
	}
	group, err := s.repo.Group.Get(ctx, username, assignment.LectureID)
	if err != nil {
		// 未入组的用户按个人名义提交
		return username
	}
	return group.Name
}

// checkOwnership 学生只能访问属主为自己（或自己所在小组）的提交；
// 不匹配时返回 404 而非 403，不暴露他人提交的存在性
func (s *submissionService) checkOwnership(ctx context.Context, ident *Identity, scope model.Scope, submission *model.Submission) error {
	if scope != model.ScopeStudent {
		return nil
	}
	if submission.Username == ident.Username {
		return nil
	}
	if submission.Assignment != nil && submission.Assignment.Type == model.AssignmentTypeGroup {
		if group, err := s.repo.Group.Get(ctx, ident.Username, submission.Assignment.LectureID); err == nil &&
			group.Name == submission.Username {
			return nil
		}
	}
	return fmt.Errorf("提交 %d: %w", submission.ID, apperrors.ErrNotFound)
}

func toSubmissionResponse(sub *model.Submission) dto.SubmissionResponse {
	return dto.SubmissionResponse{
		ID:                sub.ID,
		AssignmentID:      sub.AssignmentID,
		Username:          sub.Username,
		SubmittedAt:       sub.Date.Format(time.RFC3339),
		CommitHash:        sub.CommitHash,
		AutoStatus:        sub.AutoStatus,
		ManualStatus:      sub.ManualStatus,
		FeedbackStatus:    sub.FeedbackStatus,
		Score:             sub.Score,
		GradingScore:      sub.GradingScore,
		ScoreScaling:      sub.ScoreScaling,
		FeedbackAvailable: sub.FeedbackAvailable,
		Edited:            sub.Edited,
	}
}

// [自证通过] internal/service/submission_service.go
