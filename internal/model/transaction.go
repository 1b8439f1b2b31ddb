package model

import (
	"time"
)

// ============================================================================
// 操作类型常量
// ============================================================================

const (
	ActionCharge        = "charge"         // 扣费
	ActionRefund        = "refund"         // 退款
	ActionGrant         = "grant"          // 发放积分
	ActionTierUpgrade   = "tier-upgrade"   // 等级升级
	ActionTierDowngrade = "tier-downgrade" // 等级降级
)

// CreditTransaction 积分流水表
// 记录每一笔积分变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 每条流水满足 BalanceAfter = BalanceBefore + Amount
type CreditTransaction struct {
	ID            string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID        string         `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Action        string         `gorm:"type:varchar(64);index;not null" json:"action"`
	Amount        float64        `gorm:"not null" json:"amount"` // 金额（正数入账，负数出账）
	BalanceBefore float64        `gorm:"not null" json:"balance_before"`
	BalanceAfter  float64        `gorm:"not null" json:"balance_after"`
	Metadata      map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transaction"
}
