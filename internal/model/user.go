package model

import (
	"time"
)

// User 用户积分账户表
// 记录用户的积分余额和会员等级，是整个积分系统的核心数据
// 用户由业务方创建，引擎只修改 balance 和 membership_tier
type User struct {
	ID             string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Balance        float64    `gorm:"not null;default:0" json:"balance"`                 // 可用积分余额
	MembershipTier string     `gorm:"type:varchar(32)" json:"membership_tier,omitempty"` // 会员等级名称，空串表示无等级
	TierExpiry     *time.Time `json:"tier_expiry,omitempty"`                             // 等级过期时间，nil 表示永久
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "credit_user"
}

// HasTier 判断用户当前是否持有未过期的会员等级
func (u *User) HasTier(now time.Time) bool {
	if u.MembershipTier == "" {
		return false
	}
	if u.TierExpiry != nil && !u.TierExpiry.After(now) {
		return false
	}
	return true
}
