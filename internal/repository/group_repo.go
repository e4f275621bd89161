package repository

import (
	"context"

	"gorm.io/gorm"

	"grader-service/internal/model"
)

// GroupRepository 小组数据访问接口
type GroupRepository interface {
	Get(ctx context.Context, username string, lectureID uint) (*model.Group, error)
}

type groupRepo struct {
	db *gorm.DB
}

// NewGroupRepo 创建 GroupRepository 实例
func NewGroupRepo(db *gorm.DB) GroupRepository {
	return &groupRepo{db: db}
}

func (r *groupRepo) Get(ctx context.Context, username string, lectureID uint) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Where("username = ? AND lecture_id = ?", username, lectureID).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}
