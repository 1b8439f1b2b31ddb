// Package membership 实现会员等级门槛校验。
package membership

import (
	"fmt"
	"time"
)

// RequiredError 会员等级不满足操作门槛
type RequiredError struct {
	Required string
	Actual   string // "none" 表示无有效等级
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("membership tier %q required, current tier is %q", e.Required, e.Actual)
}

// TierNone 无有效等级时的标识
const TierNone = "none"

// ValidateAccess 判断用户能否执行需要 requiredTier 的操作。
//
// requiredTier 为空表示无门槛，直接放行。
// 用户的有效等级：tier 为空或已过期时视为 none（level 记 -1）。
// 有效等级的 level >= 门槛等级的 level 才放行。
func ValidateAccess(userTier string, tierExpiry *time.Time, requiredTier string, tierLevels map[string]int) error {
	if requiredTier == "" {
		return nil
	}

	effective := effectiveTier(userTier, tierExpiry, time.Now())

	userLevel := -1
	if effective != TierNone {
		if lvl, ok := tierLevels[effective]; ok {
			userLevel = lvl
		}
	}

	requiredLevel, ok := tierLevels[requiredTier]
	if !ok || userLevel < requiredLevel {
		return &RequiredError{Required: requiredTier, Actual: effective}
	}
	return nil
}

// effectiveTier 解析用户在 now 时刻的有效等级
func effectiveTier(userTier string, tierExpiry *time.Time, now time.Time) string {
	if userTier == "" {
		return TierNone
	}
	if tierExpiry != nil && !tierExpiry.After(now) {
		return TierNone
	}
	return userTier
}
