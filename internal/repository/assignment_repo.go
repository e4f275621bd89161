package repository

import (
	"context"

	"gorm.io/gorm"

	"grader-service/internal/model"
)

// AssignmentRepository 作业数据访问接口
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *model.Assignment) error
	GetByID(ctx context.Context, id uint) (*model.Assignment, error)
	ListByLecture(ctx context.Context, lectureID uint) ([]model.Assignment, error)
	Update(ctx context.Context, assignment *model.Assignment) error
	SoftDelete(ctx context.Context, id uint) error
	// NameExists 同一课程内未删除作业是否已占用该名称
	NameExists(ctx context.Context, lectureID uint, name string, excludeID uint) (bool, error)
}

type assignmentRepo struct {
	db *gorm.DB
}

// NewAssignmentRepo 创建 AssignmentRepository 实例
func NewAssignmentRepo(db *gorm.DB) AssignmentRepository {
	return &assignmentRepo{db: db}
}

func (r *assignmentRepo) Create(ctx context.Context, assignment *model.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepo) GetByID(ctx context.Context, id uint) (*model.Assignment, error) {
	var assignment model.Assignment
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted = ?", id, model.DeletedActive).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *assignmentRepo) ListByLecture(ctx context.Context, lectureID uint) ([]model.Assignment, error) {
	var assignments []model.Assignment
	err := r.db.WithContext(ctx).
		Where("lecture_id = ? AND deleted = ?", lectureID, model.DeletedActive).
		Order("id").
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepo) Update(ctx context.Context, assignment *model.Assignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

func (r *assignmentRepo) SoftDelete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("id = ?", id).
		Update("deleted", model.DeletedDeleted).Error
}

func (r *assignmentRepo) NameExists(ctx context.Context, lectureID uint, name string, excludeID uint) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&model.Assignment{}).
		Where("lecture_id = ? AND name = ? AND deleted = ?", lectureID, name, model.DeletedActive)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

// [自证通过] internal/repository/assignment_repo.go
