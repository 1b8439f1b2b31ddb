package model

import (
	"time"
)

// IdempotencyRecord 幂等记录表
// 缓存成功操作的完整结果，同一个 key 的重试直接返回缓存结果
//
// 【注意】key 的命名空间是全局的（不按用户/操作隔离），
// 调用方必须自己保证 key 足够唯一
type IdempotencyRecord struct {
	Key       string          `gorm:"type:varchar(128);primaryKey" json:"key"`
	Result    OperationResult `gorm:"serializer:json" json:"result"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt time.Time       `gorm:"index;not null" json:"expires_at"`
}

func (IdempotencyRecord) TableName() string {
	return "credit_idempotency"
}

// Expired 判断记录在 now 时刻是否已过期（过期的记录视为不存在）
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// OperationResult 引擎每次变更操作的返回结果
// 也是幂等记录缓存的快照，重放时原样返回
type OperationResult struct {
	Success       bool    `json:"success"`
	TransactionID string  `json:"transaction_id"`
	UserID        string  `json:"user_id"`
	Action        string  `json:"action"`
	Amount        float64 `json:"amount"`         // 签名金额，与流水一致
	Cost          float64 `json:"cost,omitempty"` // charge 时的本次费用
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
}
