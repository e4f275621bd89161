package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "grader-service/pkg/errors"
)

// ProviderIdentity 身份提供方返回的校验结果
// groups 形如 "<lecture_code><sep><role>"，由认证服务解析为课程角色
type ProviderIdentity struct {
	Username string   `json:"name"`
	Groups   []string `json:"groups"`
}

// IdentityProvider 外部身份提供方客户端接口
type IdentityProvider interface {
	// Verify 校验 token；token 无效时返回包装了 ErrForbidden 的错误
	Verify(ctx context.Context, token string) (*ProviderIdentity, error)
}

type httpIdentityProvider struct {
	baseURL string
	http    *http.Client
}

// NewIdentityProvider 创建基于 HTTP 的身份提供方客户端
func NewIdentityProvider(baseURL string) IdentityProvider {
	return &httpIdentityProvider{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *httpIdentityProvider) Verify(ctx context.Context, token string) (*ProviderIdentity, error) {
	endpoint := fmt.Sprintf("%s/authorizations/token/%s", p.baseURL, url.PathEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求身份提供方失败: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("token 校验未通过: %w", apperrors.ErrForbidden)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("身份提供方返回 HTTP %d: %s", resp.StatusCode, body)
	}

	var pid ProviderIdentity
	if err := json.NewDecoder(resp.Body).Decode(&pid); err != nil {
		return nil, fmt.Errorf("解析身份提供方响应失败: %w", err)
	}
	if pid.Username == "" {
		return nil, fmt.Errorf("身份提供方响应缺少用户名")
	}
	return &pid, nil
}

// [自证通过] internal/service/auth_provider.go
