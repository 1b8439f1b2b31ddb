// Package idempotency 实现带 TTL 的操作结果缓存。
//
// 同一个幂等 key 的重试直接返回缓存结果，保证"至多生效一次"。
// key 命名空间是全局的（不按用户/操作隔离），调用方必须自己拼出
// 足够唯一的 key；并发场景下 key 的竞争由存储层唯一约束兜底。
package idempotency

import (
	"context"
	"errors"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/storage"
)

// Guard 幂等守卫
type Guard struct {
	store   storage.IdempotencyStore
	enabled bool
	ttl     time.Duration
	now     func() time.Time
}

// New 创建幂等守卫；未启用时 Get/Save 均为空操作
func New(store storage.IdempotencyStore, enabled bool, ttl time.Duration) *Guard {
	return &Guard{
		store:   store,
		enabled: enabled,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Enabled 返回幂等是否启用
func (g *Guard) Enabled() bool { return g.enabled }

// Get 查询缓存结果；key 为空、未启用、不存在或已过期均返回 (nil, nil)。
// 过期判断只在读取时做，从不因过期修改记录。
func (g *Guard) Get(ctx context.Context, key string) (*model.OperationResult, error) {
	if !g.enabled || key == "" {
		return nil, nil
	}

	rec, err := g.store.GetIdempotencyRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Expired(g.now()) {
		return nil, nil
	}

	result := rec.Result
	return &result, nil
}

// Save 缓存一次成功操作的结果。
// 只在操作完整成功后调用——失败的操作绝不缓存，留给后续重试重新执行。
// 并发重试导致的 key 冲突不算错误（先到者的记录已经生效）。
func (g *Guard) Save(ctx context.Context, key string, result *model.OperationResult) error {
	if !g.enabled || key == "" {
		return nil
	}

	now := g.now()
	record := &model.IdempotencyRecord{
		Key:       key,
		Result:    *result,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}

	err := g.store.CreateIdempotencyRecord(ctx, record)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}
