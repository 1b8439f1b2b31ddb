// Package retry 对可失败操作做有界指数退避重试。
//
// 只重试瞬时性基础设施错误（连接抖动、超时等），业务错误一律直接透传，
// 可重试错误通过白名单匹配判定。
package retry

import (
	"context"
	"math"
	"strings"
	"time"

	"creditledger/pkg/logger"
)

// Config 重试策略配置
type Config struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxAttempts       int           `mapstructure:"max_attempts"`       // 总尝试次数（含首次），>= 1
	InitialDelay      time.Duration `mapstructure:"initial_delay"`      // 首次重试前的等待
	MaxDelay          time.Duration `mapstructure:"max_delay"`          // 等待上限
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"` // 每次重试等待的增长倍数，>= 1
	RetryableErrors   []string      `mapstructure:"retryable_errors"`   // 可重试错误子串白名单，空则用默认值
}

// DefaultRetryableErrors 默认的瞬时性错误白名单
// 覆盖常见网络/数据库抖动；匹配方式为小写子串包含
func DefaultRetryableErrors() []string {
	return []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"deadline exceeded",
		"too many connections",
		"try again",
		"temporary failure",
		"service unavailable",
	}
}

// Policy 重试执行器，无状态，可并发使用
type Policy struct {
	cfg      Config
	patterns []string
	log      logger.Logger

	// 测试时替换，用于捕获实际等待时长
	sleep func(ctx context.Context, d time.Duration) error
}

// New 创建重试策略；log 传 nil 时不输出日志
func New(cfg Config, log logger.Logger) *Policy {
	if log == nil {
		log = logger.NewNop()
	}

	patterns := cfg.RetryableErrors
	if len(patterns) == 0 {
		patterns = DefaultRetryableErrors()
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}

	return &Policy{
		cfg:      cfg,
		patterns: lowered,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Retryable 判断错误是否属于可重试的瞬时错误
func (p *Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range p.patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Do 执行 fn，失败时按策略重试。
//
// 未启用时只执行一次，错误原样透传。启用时最多尝试 MaxAttempts 次；
// 不可重试的错误立即返回，不消耗剩余次数；次数耗尽返回最后一个错误。
func (p *Policy) Do(ctx context.Context, op string, fn func() error) error {
	if !p.cfg.Enabled {
		return fn()
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		p.log.Debug("operation attempt", logger.Fields{
			"op":      op,
			"attempt": attempt,
		})

		err := fn()
		if err == nil {
			if attempt > 1 {
				p.log.Info("operation succeeded after retry", logger.Fields{
					"op":       op,
					"attempts": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !p.Retryable(err) {
			return err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		delay := p.DelayFor(attempt)
		p.log.Warn("operation failed, scheduling retry", logger.Fields{
			"op":      op,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	p.log.Error("retry attempts exhausted", logger.Fields{
		"op":       op,
		"attempts": p.cfg.MaxAttempts,
		"error":    lastErr.Error(),
	})
	return lastErr
}

// DelayFor 第 attempt 次失败后的等待时长：
// min(MaxDelay, InitialDelay * BackoffMultiplier^(attempt-1))，无抖动
func (p *Policy) DelayFor(attempt int) time.Duration {
	backoff := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.BackoffMultiplier, float64(attempt-1))
	if max := float64(p.cfg.MaxDelay); backoff > max {
		backoff = max
	}
	return time.Duration(backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
