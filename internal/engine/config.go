package engine

import (
	"time"

	"creditledger/internal/formula"
	"creditledger/internal/retry"
)

// MembershipConfig 会员体系配置
type MembershipConfig struct {
	// Tiers 等级名 → 数值等级（越大权限越高）
	Tiers map[string]int
	// Requirements 操作 → 所需等级名，未配置的操作无门槛
	Requirements map[string]string
	// CreditsCaps 等级名 → 切换到该等级时的积分额度，
	// Tiers 里的每个等级都必须配置
	CreditsCaps map[string]float64
}

// IdempotencyConfig 幂等配置
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AuditConfig 审计配置
type AuditConfig struct {
	Enabled bool
}

// Config 引擎配置
// 构造引擎时整体校验（fail fast），之后不可变
type Config struct {
	Costs       formula.CostTable
	Membership  MembershipConfig
	Retry       retry.Config
	Idempotency IdempotencyConfig
	Audit       AuditConfig
}

// Validate 校验配置，返回第一个发现的 *ConfigurationError
func (c *Config) Validate() error {
	for action, costs := range c.Costs {
		if _, ok := costs[formula.DefaultTier]; !ok {
			return &ConfigurationError{
				Field:   "costs." + action,
				Message: `missing "default" entry`,
			}
		}

		for tier, value := range costs {
			field := "costs." + action + "." + tier
			if value.IsDynamic() {
				if err := formula.Validate(value.Formula()); err != nil {
					return &ConfigurationError{Field: field, Message: "invalid formula", Err: err}
				}
			} else if value.Amount() < 0 {
				return &ConfigurationError{Field: field, Message: "cost must be non-negative"}
			}
		}
	}

	for tier, level := range c.Membership.Tiers {
		if level < 0 {
			return &ConfigurationError{
				Field:   "membership.tiers." + tier,
				Message: "tier level must be non-negative",
			}
		}
		if _, ok := c.Membership.CreditsCaps[tier]; !ok {
			return &ConfigurationError{
				Field:   "membership.creditsCaps." + tier,
				Message: "every tier requires a credits cap",
			}
		}
	}

	for action, required := range c.Membership.Requirements {
		if required == "" {
			continue
		}
		if _, ok := c.Membership.Tiers[required]; !ok {
			return &ConfigurationError{
				Field:   "membership.requirements." + action,
				Message: "references undefined tier " + required,
			}
		}
	}

	for tier, cap := range c.Membership.CreditsCaps {
		if _, ok := c.Membership.Tiers[tier]; !ok {
			return &ConfigurationError{
				Field:   "membership.creditsCaps." + tier,
				Message: "references undefined tier " + tier,
			}
		}
		if cap < 0 {
			return &ConfigurationError{
				Field:   "membership.creditsCaps." + tier,
				Message: "credits cap must be non-negative",
			}
		}
	}

	if c.Retry.Enabled {
		if c.Retry.MaxAttempts < 1 {
			return &ConfigurationError{Field: "retry.maxAttempts", Message: "must be >= 1"}
		}
		if c.Retry.InitialDelay < 0 {
			return &ConfigurationError{Field: "retry.initialDelay", Message: "must be >= 0"}
		}
		if c.Retry.MaxDelay < c.Retry.InitialDelay {
			return &ConfigurationError{Field: "retry.maxDelay", Message: "must be >= initialDelay"}
		}
		if c.Retry.BackoffMultiplier < 1 {
			return &ConfigurationError{Field: "retry.backoffMultiplier", Message: "must be >= 1"}
		}
	}

	if c.Idempotency.Enabled && c.Idempotency.TTL < 0 {
		return &ConfigurationError{Field: "idempotency.ttl", Message: "must be >= 0"}
	}

	return nil
}
