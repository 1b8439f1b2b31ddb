// Package redisidem 基于 Redis 的幂等记录存储。
//
// 幂等记录天然带 TTL 且读写路径独立于主库，放 Redis 可以减轻
// MySQL 压力；SET NX 保证并发写入同一个 key 时只有一个成功。
package redisidem

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/storage"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "credits:idem:"

// Store Redis 幂等存储实现
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

var _ storage.IdempotencyStore = (*Store)(nil)

func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var record model.IdempotencyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		// 已过期的记录没有写入意义
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	// SET NX：key 已存在说明并发请求先写入了，保留第一条
	ok, err := s.client.SetNX(ctx, keyPrefix+record.Key, data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrDuplicateKey
	}
	return nil
}
