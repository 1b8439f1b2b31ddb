package engine

import (
	"fmt"
)

// ============================================================================
// 错误类型
// ============================================================================
//
// 领域错误全部定义为带字段的具体类型，调用方用 errors.As 匹配。
// 公式相关错误在 internal/formula，会员门槛错误在 internal/membership。
//
// ============================================================================

// ConfigurationError 配置错误（构造引擎时的校验失败、grant 金额非法等）
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration %q: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid configuration %q: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UserNotFoundError 用户不存在
type UserNotFoundError struct {
	UserID string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %q not found", e.UserID)
}

// InsufficientCreditsError 余额不足
type InsufficientCreditsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %v, available %v", e.Required, e.Available)
}

// UndefinedTierError 目标等级未在配置中定义
type UndefinedTierError struct {
	Tier string
}

func (e *UndefinedTierError) Error() string {
	return fmt.Sprintf("membership tier %q is not defined", e.Tier)
}

// InvalidTierChangeError 等级变更方向不合法
type InvalidTierChangeError struct {
	Current string
	Target  string
}

func (e *InvalidTierChangeError) Error() string {
	return fmt.Sprintf("invalid tier change from %q to %q", e.Current, e.Target)
}
