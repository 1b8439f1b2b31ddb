// Package engine 实现积分交易引擎。
//
// 所有变更操作（charge/refund/grant/tier 变更）走同一条流水线：
// 幂等查询 → 取用户 → 业务校验/计费 → 写余额 → 写流水 → 写审计 → 写幂等记录。
// 引擎本身无状态、不持锁、不开启事务；同一次调用的所有存储操作共用
// 调用方传入的 context，真正的原子性由存储适配器负责。
package engine

import (
	"context"
	"math"
	"time"

	"creditledger/internal/audit"
	"creditledger/internal/formula"
	"creditledger/internal/idempotency"
	"creditledger/internal/membership"
	"creditledger/internal/model"
	"creditledger/internal/retry"
	"creditledger/internal/storage"
	"creditledger/pkg/idgen"
	"creditledger/pkg/logger"
)

// 审计里 validate-access 操作的标识（没有对应流水）
const actionValidateAccess = "validate-access"

// Engine 积分交易引擎
type Engine struct {
	cfg   Config
	store storage.Store
	log   logger.Logger

	guard   *idempotency.Guard
	auditor *audit.Recorder
	retry   *retry.Policy

	// 可选覆盖项，通过 Option 注入
	idemStore storage.IdempotencyStore
	publisher audit.Publisher
}

// Option 引擎可选配置
type Option func(*Engine)

// WithLogger 注入日志适配器
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithIdempotencyStore 让幂等记录使用独立后端（如 Redis），
// 默认使用主存储
func WithIdempotencyStore(s storage.IdempotencyStore) Option {
	return func(e *Engine) { e.idemStore = s }
}

// WithAuditPublisher 挂载审计事件发布器（如 Kafka）
func WithAuditPublisher(p audit.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// New 创建引擎，配置校验失败返回 *ConfigurationError
func New(store storage.Store, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:   cfg,
		store: store,
		log:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	idemStore := e.idemStore
	if idemStore == nil {
		idemStore = store
	}
	e.guard = idempotency.New(idemStore, cfg.Idempotency.Enabled, cfg.Idempotency.TTL)

	e.auditor = audit.New(store, cfg.Audit.Enabled, e.log)
	if e.publisher != nil {
		e.auditor.WithPublisher(e.publisher)
	}

	e.retry = retry.New(cfg.Retry, e.log)

	return e, nil
}

// ============================================================================
// 变更操作
// ============================================================================

// ChargeParams 扣费请求
type ChargeParams struct {
	UserID         string
	Action         string             // 计费操作名，对应费用配置
	Variables      map[string]float64 // 动态公式的变量绑定，nil 表示未提供
	IdempotencyKey string
	Metadata       map[string]any
}

// Charge 按费用配置扣减用户积分
func (e *Engine) Charge(ctx context.Context, p ChargeParams) (*model.OperationResult, error) {
	return e.execute(ctx, p.Action, p.UserID, p.IdempotencyKey, p.Metadata, func(user *model.User) (*mutation, error) {
		pricingTier := ""
		if user.HasTier(time.Now()) {
			pricingTier = user.MembershipTier
		}

		cost, err := formula.Calculate(e.cfg.Costs, p.Action, pricingTier, p.Variables)
		if err != nil {
			return nil, err
		}

		if user.Balance < cost {
			return nil, &InsufficientCreditsError{Required: cost, Available: user.Balance}
		}

		if required := e.cfg.Membership.Requirements[p.Action]; required != "" {
			if err := membership.ValidateAccess(user.MembershipTier, user.TierExpiry, required, e.cfg.Membership.Tiers); err != nil {
				return nil, err
			}
		}

		return &mutation{
			action:     p.Action,
			amount:     -cost,
			cost:       cost,
			newBalance: round2(user.Balance - cost),
		}, nil
	})
}

// RefundParams 退款请求
type RefundParams struct {
	UserID         string
	Amount         float64
	IdempotencyKey string
	Metadata       map[string]any
}

// Refund 退还积分（余额增加 Amount）
func (e *Engine) Refund(ctx context.Context, p RefundParams) (*model.OperationResult, error) {
	return e.execute(ctx, model.ActionRefund, p.UserID, p.IdempotencyKey, p.Metadata, func(user *model.User) (*mutation, error) {
		return &mutation{
			action:     model.ActionRefund,
			amount:     p.Amount,
			newBalance: round2(user.Balance + p.Amount),
		}, nil
	})
}

// GrantParams 积分发放请求
type GrantParams struct {
	UserID         string
	Amount         float64
	IdempotencyKey string
	Metadata       map[string]any
}

// Grant 发放积分，金额必须严格为正
func (e *Engine) Grant(ctx context.Context, p GrantParams) (*model.OperationResult, error) {
	return e.execute(ctx, model.ActionGrant, p.UserID, p.IdempotencyKey, p.Metadata, func(user *model.User) (*mutation, error) {
		if p.Amount <= 0 {
			return nil, &ConfigurationError{Field: "amount", Message: "grant amount must be positive"}
		}
		return &mutation{
			action:     model.ActionGrant,
			amount:     p.Amount,
			newBalance: round2(user.Balance + p.Amount),
		}, nil
	})
}

// TierChangeParams 等级变更请求
type TierChangeParams struct {
	UserID         string
	TargetTier     string
	IdempotencyKey string
	Metadata       map[string]any
}

// UpgradeTier 升级会员等级。
// 余额被【置为】目标等级的积分额度，不是加减
func (e *Engine) UpgradeTier(ctx context.Context, p TierChangeParams) (*model.OperationResult, error) {
	return e.changeTier(ctx, model.ActionTierUpgrade, p)
}

// DowngradeTier 降级会员等级，余额同样置为目标额度
func (e *Engine) DowngradeTier(ctx context.Context, p TierChangeParams) (*model.OperationResult, error) {
	return e.changeTier(ctx, model.ActionTierDowngrade, p)
}

func (e *Engine) changeTier(ctx context.Context, action string, p TierChangeParams) (*model.OperationResult, error) {
	return e.execute(ctx, action, p.UserID, p.IdempotencyKey, p.Metadata, func(user *model.User) (*mutation, error) {
		// 目标等级是否存在先于方向校验
		targetLevel, ok := e.cfg.Membership.Tiers[p.TargetTier]
		if !ok {
			return nil, &UndefinedTierError{Tier: p.TargetTier}
		}

		currentTier := membership.TierNone
		currentLevel := -1
		if user.HasTier(time.Now()) {
			currentTier = user.MembershipTier
			if lvl, ok := e.cfg.Membership.Tiers[user.MembershipTier]; ok {
				currentLevel = lvl
			}
		}

		if action == model.ActionTierUpgrade && targetLevel <= currentLevel {
			return nil, &InvalidTierChangeError{Current: currentTier, Target: p.TargetTier}
		}
		if action == model.ActionTierDowngrade && targetLevel >= currentLevel {
			return nil, &InvalidTierChangeError{Current: currentTier, Target: p.TargetTier}
		}

		cap := e.cfg.Membership.CreditsCaps[p.TargetTier]
		return &mutation{
			action:     action,
			amount:     round2(cap - user.Balance),
			newBalance: cap,
			tierTarget: &p.TargetTier,
		}, nil
	})
}

// ============================================================================
// 只读操作
// ============================================================================

// QueryBalance 查询用户当前余额
func (e *Engine) QueryBalance(ctx context.Context, userID string) (float64, error) {
	user, err := e.fetchUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// GetHistory 查询用户流水，按创建时间倒序。
// 日期边界为闭区间，action 精确匹配，分页无缝不重复
func (e *Engine) GetHistory(ctx context.Context, userID string, filter storage.TransactionFilter) ([]*model.CreditTransaction, error) {
	if filter.Limit < 0 {
		filter.Limit = 0
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var txns []*model.CreditTransaction
	err := e.retry.Do(ctx, "storage.get_transactions", func() error {
		var err error
		txns, err = e.store.GetTransactions(ctx, userID, filter)
		return err
	})
	return txns, err
}

// ValidateAccess 校验用户能否执行 action，失败写审计
func (e *Engine) ValidateAccess(ctx context.Context, userID, action string) error {
	user, err := e.fetchUser(ctx, userID)
	if err != nil {
		e.auditFailure(ctx, userID, actionValidateAccess, err, map[string]any{"action": action})
		return err
	}

	required := e.cfg.Membership.Requirements[action]
	if err := membership.ValidateAccess(user.MembershipTier, user.TierExpiry, required, e.cfg.Membership.Tiers); err != nil {
		e.auditFailure(ctx, userID, actionValidateAccess, err, map[string]any{
			"action":   action,
			"required": required,
		})
		return err
	}
	return nil
}

// ============================================================================
// 流水线
// ============================================================================

// mutation plan 阶段的产物：校验通过后要落库的变更
type mutation struct {
	action     string
	amount     float64 // 签名金额，写入流水
	cost       float64 // charge 时的费用
	newBalance float64
	tierTarget *string // 等级变更时的目标等级
}

// execute 变更操作的统一流水线
func (e *Engine) execute(
	ctx context.Context,
	action, userID, idemKey string,
	metadata map[string]any,
	plan func(user *model.User) (*mutation, error),
) (*model.OperationResult, error) {
	// 1. 幂等命中直接返回缓存结果，不产生任何新的写入
	if idemKey != "" && e.guard.Enabled() {
		var cached *model.OperationResult
		err := e.retry.Do(ctx, "idempotency.get", func() error {
			var err error
			cached, err = e.guard.Get(ctx, idemKey)
			return err
		})
		if err != nil {
			return nil, err
		}
		if cached != nil {
			e.log.Debug("idempotency hit", logger.Fields{
				"key":            idemKey,
				"transaction_id": cached.TransactionID,
			})
			return cached, nil
		}
	}

	// 2. 取用户
	user, err := e.fetchUser(ctx, userID)
	if err != nil {
		e.auditFailure(ctx, userID, action, err, metadata)
		return nil, err
	}

	// 3. 业务校验与计费
	m, err := plan(user)
	if err != nil {
		e.auditFailure(ctx, userID, action, err, metadata)
		return nil, err
	}

	// 4-5. 写余额（等级变更时同时写等级）
	if m.tierTarget != nil {
		err = e.retry.Do(ctx, "storage.update_tier", func() error {
			_, err := e.store.UpdateUserTier(ctx, userID, *m.tierTarget, nil)
			return err
		})
		if err != nil {
			e.auditFailure(ctx, userID, action, err, metadata)
			return nil, err
		}
	}
	err = e.retry.Do(ctx, "storage.update_balance", func() error {
		_, err := e.store.UpdateUserBalance(ctx, userID, m.newBalance)
		return err
	})
	if err != nil {
		e.auditFailure(ctx, userID, action, err, metadata)
		return nil, err
	}

	// 6. 写流水
	txn := &model.CreditTransaction{
		ID:            idgen.GenerateTransactionID(),
		UserID:        userID,
		Action:        m.action,
		Amount:        m.amount,
		BalanceBefore: user.Balance,
		BalanceAfter:  m.newBalance,
		Metadata:      copyMetadata(metadata),
		CreatedAt:     time.Now(),
	}
	err = e.retry.Do(ctx, "storage.create_transaction", func() error {
		return e.store.CreateTransaction(ctx, txn)
	})
	if err != nil {
		e.auditFailure(ctx, userID, action, err, metadata)
		return nil, err
	}

	// 7. 成功审计，附带完整上下文
	auditMeta := copyMetadata(metadata)
	if auditMeta == nil {
		auditMeta = make(map[string]any)
	}
	auditMeta["amount"] = m.amount
	if m.cost != 0 {
		auditMeta["cost"] = m.cost
	}
	auditMeta["balance_before"] = user.Balance
	auditMeta["balance_after"] = m.newBalance
	auditMeta["transaction_id"] = txn.ID
	if err := e.auditor.Success(ctx, userID, action, auditMeta); err != nil {
		// 审计失败不影响已完成的操作，记录后继续
		e.log.Error("audit write failed", logger.Fields{
			"user_id": userID,
			"action":  action,
			"error":   err.Error(),
		})
	}

	result := &model.OperationResult{
		Success:       true,
		TransactionID: txn.ID,
		UserID:        userID,
		Action:        m.action,
		Amount:        m.amount,
		Cost:          m.cost,
		BalanceBefore: user.Balance,
		BalanceAfter:  m.newBalance,
	}

	// 8. 写幂等记录（只在完整成功后）
	if idemKey != "" {
		err := e.retry.Do(ctx, "idempotency.save", func() error {
			return e.guard.Save(ctx, idemKey, result)
		})
		if err != nil {
			e.log.Warn("idempotency record save failed", logger.Fields{
				"key":   idemKey,
				"error": err.Error(),
			})
		}
	}

	return result, nil
}

func (e *Engine) fetchUser(ctx context.Context, userID string) (*model.User, error) {
	var user *model.User
	err := e.retry.Do(ctx, "storage.get_user", func() error {
		var err error
		user, err = e.store.GetUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &UserNotFoundError{UserID: userID}
	}
	return user, nil
}

// auditFailure 失败审计写盘，写失败只记日志（不吞掉原始错误）
func (e *Engine) auditFailure(ctx context.Context, userID, action string, opErr error, metadata map[string]any) {
	if err := e.auditor.Failure(ctx, userID, action, opErr, copyMetadata(metadata)); err != nil {
		e.log.Error("audit write failed", logger.Fields{
			"user_id": userID,
			"action":  action,
			"error":   err.Error(),
		})
	}
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// round2 金额统一保留 2 位小数，避免浮点累积误差
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
