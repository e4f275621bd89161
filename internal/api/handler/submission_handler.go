package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grader-service/internal/api/middleware"
	"grader-service/internal/dto"
	"grader-service/internal/model"
	"grader-service/internal/repository"
	"grader-service/internal/service"
	"grader-service/pkg/response"
)

// SubmissionHandler 提交接口
type SubmissionHandler struct {
	svc    service.SubmissionService
	export service.ExportService
	logger *zap.Logger
}

// NewSubmissionHandler 创建 SubmissionHandler 实例
func NewSubmissionHandler(svc service.SubmissionService, export service.ExportService, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, export: export, logger: logger}
}

// List GET /lectures/:lid/assignments/:aid/submissions
// 查询参数: filter ∈ {none,latest,best}、instructor-version ∈ {true,false}、
// format ∈ {json,csv,xlsx}；format 非 json 时走导出路径（仅 staff 路由挂载）
func (h *SubmissionHandler) List(c *gin.Context) {
	if !checkQuery(c, "filter", "instructor-version", "format") {
		return
	}
	lid, ok := pathID(c, "lid")
	if !ok {
		return
	}
	aid, ok := pathID(c, "aid")
	if !ok {
		return
	}

	format := c.DefaultQuery("format", "json")
	if format != "json" {
		h.exportSubmissions(c, lid, aid, format)
		return
	}

	filter := repository.SubmissionFilter(c.DefaultQuery("filter", string(repository.FilterNone)))
	switch filter {
	case repository.FilterNone, repository.FilterLatest, repository.FilterBest:
	default:
		response.BadRequest(c, 10001, "filter 需为 none/latest/best")
		return
	}

	iv := c.Query("instructor-version")
	switch iv {
	case "", "true", "false":
	default:
		response.BadRequest(c, 10001, "instructor-version 需为 true/false")
		return
	}

	opts := service.SubmissionListOptions{
		Filter:            filter,
		InstructorVersion: iv == "true",
	}
	submissions, err := h.svc.List(c.Request.Context(),
		middleware.GetIdentity(c), middleware.GetScope(c), lid, aid, opts)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, submissions)
}

func (h *SubmissionHandler) exportSubmissions(c *gin.Context, lid, aid uint, format string) {
	// 导出包含全部用户的提交，学生不可用
	if middleware.GetScope(c) == model.ScopeStudent {
		response.Forbidden(c, 10003, "导出需要 tutor 以上权限")
		return
	}

	file, err := h.export.Submissions(c.Request.Context(), lid, aid, format)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Create POST /lectures/:lid/assignments/:aid/submissions
func (h *SubmissionHandler) Create(c *gin.Context) {
	lid, ok := pathID(c, "lid")
	if !ok {
		return
	}
	aid, ok := pathID(c, "aid")
	if !ok {
		return
	}
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "请求参数非法: "+err.Error())
		return
	}

	submission, err := h.svc.Create(c.Request.Context(),
		middleware.GetIdentity(c), middleware.GetScope(c), lid, aid, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.Created(c, submission)
}

// Get GET /lectures/:lid/assignments/:aid/submissions/:sid
func (h *SubmissionHandler) Get(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}

	submission, err := h.svc.Get(c.Request.Context(),
		middleware.GetIdentity(c), middleware.GetScope(c), lid, aid, sid)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, submission)
}

// Update PUT /lectures/:lid/assignments/:aid/submissions/:sid
func (h *SubmissionHandler) Update(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}
	var req dto.UpdateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "请求参数非法: "+err.Error())
		return
	}

	submission, err := h.svc.Update(c.Request.Context(), lid, aid, sid, &req)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, submission)
}

// Logs GET /lectures/:lid/assignments/:aid/submissions/:sid/logs
func (h *SubmissionHandler) Logs(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}

	logs, err := h.svc.Logs(c.Request.Context(), lid, aid, sid)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, logs)
}

// GetProperties GET /lectures/:lid/assignments/:aid/submissions/:sid/properties
// 响应体为原始 gradebook JSON（写入什么读回什么）
func (h *SubmissionHandler) GetProperties(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}

	props, err := h.svc.GetProperties(c.Request.Context(),
		middleware.GetIdentity(c), middleware.GetScope(c), lid, aid, sid)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(props))
}

// PutProperties PUT /lectures/:lid/assignments/:aid/submissions/:sid/properties
func (h *SubmissionHandler) PutProperties(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, propertiesMaxBytes))
	if err != nil {
		response.BadRequest(c, 10001, "读取请求体失败")
		return
	}

	submission, err := h.svc.PutProperties(c.Request.Context(), lid, aid, sid, string(raw))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, submission)
}

// Edit PUT /lectures/:lid/assignments/:aid/submissions/:sid/edit
func (h *SubmissionHandler) Edit(c *gin.Context) {
	lid, aid, sid, ok := h.pathIDs(c)
	if !ok {
		return
	}

	submission, err := h.svc.MarkEdited(c.Request.Context(), lid, aid, sid)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, submission)
}

// SyncLTI GET /lectures/:lid/assignments/:aid/submissions/lti
func (h *SubmissionHandler) SyncLTI(c *gin.Context) {
	lid, ok := pathID(c, "lid")
	if !ok {
		return
	}
	aid, ok := pathID(c, "aid")
	if !ok {
		return
	}

	result, err := h.svc.SyncLTI(c.Request.Context(), lid, aid)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	response.OK(c, result)
}

func (h *SubmissionHandler) pathIDs(c *gin.Context) (lid, aid, sid uint, ok bool) {
	if lid, ok = pathID(c, "lid"); !ok {
		return
	}
	if aid, ok = pathID(c, "aid"); !ok {
		return
	}
	sid, ok = pathID(c, "sid")
	return
}

// [自证通过] internal/api/handler/submission_handler.go
