package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"grader-service/config"
	"grader-service/internal/model"
	"grader-service/pkg/cache"
	apperrors "grader-service/pkg/errors"
)

type fakeProvider struct {
	calls      int
	identities map[string]*ProviderIdentity
}

func (f *fakeProvider) Verify(_ context.Context, token string) (*ProviderIdentity, error) {
	f.calls++
	pid, ok := f.identities[token]
	if !ok {
		return nil, fmt.Errorf("身份提供方拒绝 token: %w", apperrors.ErrForbidden)
	}
	return pid, nil
}

func newAuthEnv(t *testing.T, identities map[string]*ProviderIdentity) (AuthService, *fakeProvider) {
	t.Helper()
	repo, _, _, _ := newMockRepository()
	provider := &fakeProvider{identities: identities}
	cfg := &config.AuthConfig{
		GroupSeparator: "__",
		TokenCacheTTL:  time.Minute,
		UserCacheTTL:   time.Minute,
	}
	return NewAuthService(cfg, repo, cache.NewMemory(), provider, zap.NewNop()), provider
}

func TestAuthenticateBuildsIdentity(t *testing.T) {
	svc, _ := newAuthEnv(t, map[string]*ProviderIdentity{
		"tok-alice": {Username: "alice", Groups: []string{"ds26__student", "ml26__tutor"}},
	})

	ident, err := svc.Authenticate(context.Background(), "tok-alice")
	if err != nil {
		t.Fatalf("认证失败: %v", err)
	}
	if ident.Username != "alice" {
		t.Fatalf("username = %q", ident.Username)
	}
	if s, ok := ident.ScopeForCode("ds26"); !ok || s != model.ScopeStudent {
		t.Fatalf("ds26 权限 = (%v, %v), 期望 student", s, ok)
	}
	if s, ok := ident.ScopeForCode("ml26"); !ok || s != model.ScopeTutor {
		t.Fatalf("ml26 权限 = (%v, %v), 期望 tutor", s, ok)
	}
	// 未见过的课程代码被惰性创建，Roles 按课程 ID 可查
	if len(ident.Roles) != 2 {
		t.Fatalf("应有 2 条课程角色，实际 %d", len(ident.Roles))
	}
}

func TestAuthenticateTokenCache(t *testing.T) {
	svc, provider := newAuthEnv(t, map[string]*ProviderIdentity{
		"tok": {Username: "alice", Groups: []string{"ds26__student"}},
	})
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, "tok"); err != nil {
		t.Fatalf("首次认证失败: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "tok"); err != nil {
		t.Fatalf("二次认证失败: %v", err)
	}
	// 第二次命中 token 缓存，不再外呼
	if provider.calls != 1 {
		t.Fatalf("身份提供方被调用 %d 次，期望 1", provider.calls)
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	svc, _ := newAuthEnv(t, nil)

	_, err := svc.Authenticate(context.Background(), "bogus")
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("无效 token 应返回 ErrForbidden，实际 %v", err)
	}
}

func TestAuthenticateCodeContainingSeparator(t *testing.T) {
	// 课程代码本身含分隔符：按最后一个分隔符切分
	svc, _ := newAuthEnv(t, map[string]*ProviderIdentity{
		"tok": {Username: "bob", Groups: []string{"adv__ml26__instructor"}},
	})

	ident, err := svc.Authenticate(context.Background(), "tok")
	if err != nil {
		t.Fatalf("认证失败: %v", err)
	}
	if s, ok := ident.ScopeForCode("adv__ml26"); !ok || s != model.ScopeInstructor {
		t.Fatalf("adv__ml26 权限 = (%v, %v), 期望 instructor", s, ok)
	}
}

func TestAuthenticateSkipsMalformedGroups(t *testing.T) {
	svc, _ := newAuthEnv(t, map[string]*ProviderIdentity{
		"tok": {Username: "carol", Groups: []string{
			"ds26__student",
			"no-separator",    // 无分隔符
			"ds26__president", // 未知角色
			"__student",       // 空课程代码
		}},
	})

	ident, err := svc.Authenticate(context.Background(), "tok")
	if err != nil {
		t.Fatalf("认证失败: %v", err)
	}
	if len(ident.Roles) != 1 {
		t.Fatalf("非法组应被忽略，角色数 = %d，期望 1", len(ident.Roles))
	}
}

func TestSplitGroup(t *testing.T) {
	cases := []struct {
		in, code, role string
		ok             bool
	}{
		{"ds26__student", "ds26", "student", true},
		{"adv__ml__tutor", "adv__ml", "tutor", true},
		{"__student", "", "", false},
		{"ds26__", "", "", false},
		{"plain", "", "", false},
	}
	for _, tc := range cases {
		code, role, ok := splitGroup(tc.in, "__")
		if code != tc.code || role != tc.role || ok != tc.ok {
			t.Errorf("splitGroup(%q) = (%q, %q, %v), 期望 (%q, %q, %v)",
				tc.in, code, role, ok, tc.code, tc.role, tc.ok)
		}
	}
}

// [自证通过] internal/service/auth_service_test.go
