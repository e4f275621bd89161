package handler

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"grader-service/config"
	"grader-service/internal/api/middleware"
	"grader-service/internal/gitrepo"
	"grader-service/internal/model"
	"grader-service/internal/repository"
	"grader-service/internal/service"
	"grader-service/pkg/response"
)

// git smart-HTTP 的两种 RPC
const (
	rpcUploadPack  = "git-upload-pack"
	rpcReceivePack = "git-receive-pack"
)

// GitBackend 网关依赖的仓库操作子集，由 *gitrepo.Manager 实现
type GitBackend interface {
	Path(loc gitrepo.Location) string
	EnsureExists(ctx context.Context, loc gitrepo.Location) (string, error)
	ResolveMainHash(ctx context.Context, path string) (string, error)
	RPCCommand(ctx context.Context, rpc, path string, advertise bool) *exec.Cmd
}

// GitHandler git smart-HTTP 网关
// 将 clone/pull/push 代理到服务端裸仓库，在转发前执行课程级授权；
// 响应体直接流式转发 git 子进程输出，不经过统一 JSON 信封
type GitHandler struct {
	cfg        *config.Config
	repo       *repository.Repository
	git        GitBackend
	submission service.SubmissionService
	logger     *zap.Logger
}

// NewGitHandler 创建 GitHandler 实例
func NewGitHandler(cfg *config.Config, repo *repository.Repository, git GitBackend, submission service.SubmissionService, logger *zap.Logger) *GitHandler {
	return &GitHandler{cfg: cfg, repo: repo, git: git, submission: submission, logger: logger}
}

// gitRequest 一次 git 请求解析+授权后的全部上下文
type gitRequest struct {
	rpc        string // upload-pack | receive-pack（去掉 git- 前缀）
	lecture    *model.Lecture
	assignment *model.Assignment
	requested  gitrepo.RepoType // 路径中声明的类别（可能是 assignment 占位）
	resolved   gitrepo.RepoType
	location   gitrepo.Location
	submission *model.Submission // autograde/feedback/edit 时有值
	username   string
	scope      model.Scope
}

// InfoRefs GET /git/*gitpath（…/info/refs?service=git-<rpc>）引用广告
func (h *GitHandler) InfoRefs(c *gin.Context) {
	serviceName := c.Query("service")
	if serviceName != rpcUploadPack && serviceName != rpcReceivePack {
		response.BadRequest(c, 10001, "service 参数需为 git-upload-pack 或 git-receive-pack")
		return
	}

	segments, ok := splitGitPath(c.Param("gitpath"), "info/refs")
	if !ok {
		response.NotFound(c, 10404, "资源不存在")
		return
	}

	req, ok := h.prepare(c, segments, serviceName)
	if !ok {
		return
	}

	setNoCache(c)
	c.Header("Content-Type", "application/x-"+serviceName+"-advertisement")
	c.Status(http.StatusOK)

	// pkt-line 前导必须先于子进程输出写出
	if _, err := c.Writer.Write(gitrepo.AdvertisementPrelude(serviceName)); err != nil {
		return
	}

	cmd := h.git.RPCCommand(c.Request.Context(), req.rpc, h.git.Path(req.location), true)
	cmd.Stdout = c.Writer
	if err := cmd.Run(); err != nil {
		h.logger.Error("引用广告子进程失败",
			zap.String("rpc", req.rpc),
			zap.Error(err),
		)
	}
}

// ServiceRPC POST /git/*gitpath（…/git-upload-pack | …/git-receive-pack）
// 请求体管道进子进程 stdin，stdout 分块回写并逐块 flush
func (h *GitHandler) ServiceRPC(c *gin.Context) {
	segments, serviceName, ok := splitGitRPCPath(c.Param("gitpath"))
	if !ok {
		response.NotFound(c, 10404, "资源不存在")
		return
	}

	req, ok := h.prepare(c, segments, serviceName)
	if !ok {
		return
	}

	body := io.Reader(c.Request.Body)
	if c.GetHeader("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			response.BadRequest(c, 10001, "gzip 请求体非法")
			return
		}
		defer gz.Close()
		body = gz
	}

	setNoCache(c)
	c.Header("Content-Type", "application/x-"+serviceName+"-result")

	repoPath := h.git.Path(req.location)
	cmd := h.git.RPCCommand(c.Request.Context(), req.rpc, repoPath, false)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		response.InternalError(c)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		response.InternalError(c)
		return
	}
	if err := cmd.Start(); err != nil {
		h.logger.Error("启动 git 子进程失败", zap.String("rpc", req.rpc), zap.Error(err))
		response.InternalError(c)
		return
	}

	// 请求体异步灌入 stdin：receive-pack 会边读边写进度
	go func() {
		defer stdin.Close()
		if _, err := io.Copy(stdin, body); err != nil {
			h.logger.Warn("转发请求体到 git 子进程失败", zap.Error(err))
		}
	}()

	c.Status(http.StatusOK)
	streamChunks(c.Writer, stdout)

	if err := cmd.Wait(); err != nil {
		h.logger.Error("git 子进程退出异常",
			zap.String("rpc", req.rpc),
			zap.String("path", repoPath),
			zap.Error(err),
		)
		return
	}

	// push 成功后的副作用：登记提交并按批改模式触发流水线
	if req.rpc == "receive-pack" && isSubmissionPush(req.requested) {
		h.recordPush(c, req, repoPath)
	}
}

// prepare 解析路径 → 解析课程/作业/角色 → 授权 → 惰性建仓
func (h *GitHandler) prepare(c *gin.Context, segments []string, serviceName string) (*gitRequest, bool) {
	ident := middleware.GetIdentity(c)
	ctx := c.Request.Context()

	// 路径: <lecture_code>/<assignment_id>/<repo_type>[/<submission_id>]
	if len(segments) < 3 || len(segments) > 4 {
		response.NotFound(c, 10404, "资源不存在")
		return nil, false
	}

	lecture, err := h.repo.Lecture.GetByCode(ctx, segments[0])
	if err != nil || lecture.Deleted != model.DeletedActive {
		response.NotFound(c, 10404, "资源不存在")
		return nil, false
	}
	scope, hasRole := ident.ScopeFor(lecture.ID)
	if !hasRole {
		response.NotFound(c, 10404, "资源不存在")
		return nil, false
	}

	assignmentID, err := strconv.ParseUint(segments[1], 10, 64)
	if err != nil {
		response.NotFound(c, 10404, "资源不存在")
		return nil, false
	}
	assignment, err := h.repo.Assignment.GetByID(ctx, uint(assignmentID))
	if err != nil || assignment.LectureID != lecture.ID {
		response.NotFound(c, 10404, "资源不存在")
		return nil, false
	}

	// 学生对未发布作业的任何 git 访问按不存在处理，
	// 避免惰性建仓把 release 内容提前复制给学生；
	// push 额外要求 released，与显式登记口径一致
	if scope == model.ScopeStudent {
		visible := assignment.Status == model.AssignmentStatusReleased ||
			assignment.Status == model.AssignmentStatusComplete
		if !visible ||
			(serviceName == rpcReceivePack && assignment.Status != model.AssignmentStatusReleased) {
			response.NotFound(c, 10404, "资源不存在")
			return nil, false
		}
	}

	requested, err := gitrepo.ParseRepoType(segments[2])
	if err != nil {
		response.NotFound(c, 10404, "资源不存在")
		return nil, false
	}
	resolved := requested.Resolve(assignment.Type)

	req := &gitRequest{
		rpc:        strings.TrimPrefix(serviceName, "git-"),
		lecture:    lecture,
		assignment: assignment,
		requested:  requested,
		resolved:   resolved,
		username:   ident.Username,
		scope:      scope,
	}

	// autograde/feedback/edit 需要提交号段；缺失或非法按 403，不泄露存在性
	switch resolved {
	case gitrepo.RepoAutograde, gitrepo.RepoFeedback, gitrepo.RepoEdit:
		if len(segments) != 4 {
			response.Forbidden(c, 10003, "无权限访问")
			return nil, false
		}
		sid, err := strconv.ParseUint(segments[3], 10, 64)
		if err != nil {
			response.Forbidden(c, 10003, "无权限访问")
			return nil, false
		}
		sub, err := h.repo.Submission.GetByID(ctx, uint(sid))
		if err != nil || sub.AssignmentID != assignment.ID {
			response.Forbidden(c, 10003, "无权限访问")
			return nil, false
		}
		req.submission = sub
	default:
		if len(segments) != 3 {
			response.NotFound(c, 10404, "资源不存在")
			return nil, false
		}
	}

	if !h.authorize(c, req) {
		return nil, false
	}

	loc, err := h.buildLocation(ctx, req)
	if err != nil {
		// group 作业但调用者未入组：按无权限处理
		response.Forbidden(c, 10003, "无权限访问")
		return nil, false
	}
	req.location = loc
	if _, err := h.git.EnsureExists(ctx, req.location); err != nil {
		h.logger.Error("惰性创建仓库失败",
			zap.String("lecture_code", lecture.Code),
			zap.Uint("assignment_id", assignment.ID),
			zap.String("repo_type", string(resolved)),
			zap.Error(err),
		)
		response.InternalError(c)
		return nil, false
	}
	return req, true
}

// authorize 按固定优先级执行 §学生限制 → §全员推送禁令
func (h *GitHandler) authorize(c *gin.Context, req *gitRequest) bool {
	if req.scope == model.ScopeStudent {
		switch req.resolved {
		case gitrepo.RepoSource, gitrepo.RepoRelease, gitrepo.RepoEdit:
			response.Forbidden(c, 10003, "无权限访问")
			return false
		case gitrepo.RepoAutograde:
			// 学生连拉取 autograde 都不允许
			response.Forbidden(c, 10003, "无权限访问")
			return false
		case gitrepo.RepoFeedback:
			if !h.ownsSubmission(c, req) {
				response.Forbidden(c, 10003, "无权限访问")
				return false
			}
		}
	}

	// autograde/feedback 仓库只由服务端执行器写入，对所有角色禁止推送
	if req.rpc == "receive-pack" &&
		(req.resolved == gitrepo.RepoAutograde || req.resolved == gitrepo.RepoFeedback) {
		response.Forbidden(c, 10003, "无权限访问")
		return false
	}
	return true
}

func (h *GitHandler) ownsSubmission(c *gin.Context, req *gitRequest) bool {
	if req.submission == nil {
		return false
	}
	if req.submission.Username == req.username {
		return true
	}
	// group 作业的提交属主是小组名
	if req.assignment.Type == model.AssignmentTypeGroup {
		if group, err := h.repo.Group.Get(c.Request.Context(), req.username, req.lecture.ID); err == nil &&
			group.Name == req.submission.Username {
			return true
		}
	}
	return false
}

// buildLocation Owner 的语义随类别变化：
// user/group 取提交者（group 取其小组名），autograde 取提交属主，
// feedback 取拉取者自己
func (h *GitHandler) buildLocation(ctx context.Context, req *gitRequest) (gitrepo.Location, error) {
	loc := gitrepo.Location{
		LectureCode:    req.lecture.Code,
		AssignmentID:   req.assignment.ID,
		Type:           req.resolved,
		AssignmentType: req.assignment.Type,
	}
	switch req.resolved {
	case gitrepo.RepoUser:
		loc.Owner = req.username
	case gitrepo.RepoGroup:
		group, err := h.repo.Group.Get(ctx, req.username, req.lecture.ID)
		if err != nil {
			return loc, err
		}
		loc.Owner = group.Name
	case gitrepo.RepoAutograde:
		loc.Owner = req.submission.Username
	case gitrepo.RepoFeedback:
		loc.Owner = req.username
	case gitrepo.RepoEdit:
		loc.SubmissionID = req.submission.ID
	}
	return loc, nil
}

// recordPush push 完成后解析 main 指向的提交并登记提交记录
func (h *GitHandler) recordPush(c *gin.Context, req *gitRequest, repoPath string) {
	ctx := c.Request.Context()

	hash, err := h.git.ResolveMainHash(ctx, repoPath)
	if err != nil {
		h.logger.Error("push 后解析 main 失败",
			zap.String("path", repoPath),
			zap.Error(err),
		)
		return
	}

	owner := req.location.Owner
	if _, err := h.submission.CreateFromPush(ctx, req.lecture, req.assignment, owner, hash, req.scope); err != nil {
		h.logger.Error("push 后登记提交失败",
			zap.String("path", repoPath),
			zap.String("commit_hash", hash),
			zap.Error(err),
		)
	}
}

// ── 内部工具 ──

// splitGitPath 去掉尾部固定段（如 info/refs）后按 / 切分
func splitGitPath(gitpath, trailing string) ([]string, bool) {
	p := strings.Trim(gitpath, "/")
	if !strings.HasSuffix(p, trailing) {
		return nil, false
	}
	p = strings.TrimSuffix(p, trailing)
	p = strings.Trim(p, "/")
	if p == "" {
		return nil, false
	}
	return strings.Split(p, "/"), true
}

// splitGitRPCPath 取出尾段的 RPC 名（git-upload-pack|git-receive-pack）
func splitGitRPCPath(gitpath string) (segments []string, serviceName string, ok bool) {
	p := strings.Trim(gitpath, "/")
	parts := strings.Split(p, "/")
	if len(parts) < 2 {
		return nil, "", false
	}
	last := parts[len(parts)-1]
	if last != rpcUploadPack && last != rpcReceivePack {
		return nil, "", false
	}
	return parts[:len(parts)-1], last, true
}

// isSubmissionPush 只有对 assignment 占位类别（及其解析结果）的推送是
// 真正的学生/小组提交；autograde/feedback 由执行器在服务端直接写入
func isSubmissionPush(requested gitrepo.RepoType) bool {
	return requested == gitrepo.RepoAssignment ||
		requested == gitrepo.RepoUser ||
		requested == gitrepo.RepoGroup
}

// streamChunks 分块回写并在每块后 flush，保证 git 客户端的进度实时性
func streamChunks(w gin.ResponseWriter, r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			w.Flush()
		}
		if err != nil {
			return
		}
	}
}

func setNoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

// [自证通过] internal/api/handler/git_handler.go
