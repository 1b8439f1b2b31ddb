package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 基于 Redis SET NX 的分布式锁。
//
// 同一个用户的扣费请求必须串行化：两个并发请求都读到余额 100、
// 都扣 100，余额就被扣成负数了。按用户维度加锁，不同用户互不影响。
//
// 加锁：SET key value NX EX timeout
//   - NX 保证互斥，EX 防止持有者崩溃后死锁
//   - value 是持有者标识，释放时校验，避免误删别人的锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// Lua 脚本保证"校验持有者 + 删除"的原子性：锁过期后被别人拿走时，
// 迟到的 Unlock 不能删掉新持有者的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewUserLock 创建按用户维度的积分操作锁
// value 使用请求的幂等 key（没有就传请求 ID），便于追踪持有者
func NewUserLock(client *redis.Client, userID, requestID string) *DistributedLock {
	key := fmt.Sprintf("credits:lock:user:%s", userID)
	return NewDistributedLock(client, key, requestID, 30*time.Second)
}
