// Package storage 定义积分引擎消费的存储适配器接口。
//
// 引擎本身不关心持久化细节：同一次调用内的所有存储操作共用同一个
// context，事务适配器（见 gormstore.WithTx）可以借此把它们收进一个
// 数据库事务；引擎自己永远不开启/提交事务。
package storage

import (
	"context"
	"errors"
	"time"

	"creditledger/internal/model"
)

var (
	// ErrDuplicateKey 唯一约束冲突（幂等 key 并发写入时出现）
	ErrDuplicateKey = errors.New("storage: duplicate key")
)

// TransactionFilter 流水查询条件，零值字段表示不过滤
type TransactionFilter struct {
	Limit     int
	Offset    int
	StartDate *time.Time // 含边界
	EndDate   *time.Time // 含边界
	Action    string     // 精确匹配
}

// Store 存储适配器接口
// 所有读接口对"不存在"的语义统一为返回 (nil, nil)
type Store interface {
	// GetUserByID 查询用户，不存在返回 (nil, nil)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// CreateUser 创建用户（由业务方调用，引擎不创建用户）
	CreateUser(ctx context.Context, user *model.User) error
	// UpdateUserBalance 把用户余额更新为 balance，返回更新后的用户
	UpdateUserBalance(ctx context.Context, id string, balance float64) (*model.User, error)
	// UpdateUserTier 更新用户会员等级和过期时间，返回更新后的用户
	UpdateUserTier(ctx context.Context, id string, tier string, expiry *time.Time) (*model.User, error)

	// CreateTransaction 追加一条流水
	CreateTransaction(ctx context.Context, txn *model.CreditTransaction) error
	// GetTransactions 按条件查询流水，按创建时间倒序
	GetTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]*model.CreditTransaction, error)

	// CreateAuditLog 追加一条审计日志
	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error

	IdempotencyStore
}

// IdempotencyStore 幂等记录子接口
// 单独拆出来是为了允许幂等记录使用独立后端（如 Redis），
// "检查 key 是否存在 + 创建" 的原子性由实现方保证
type IdempotencyStore interface {
	// GetIdempotencyRecord 查询幂等记录；不存在或已过期返回 (nil, nil)
	GetIdempotencyRecord(ctx context.Context, key string) (*model.IdempotencyRecord, error)
	// CreateIdempotencyRecord 创建幂等记录；key 已存在返回 ErrDuplicateKey
	CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) error
}
