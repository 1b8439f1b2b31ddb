package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"creditledger/internal/engine"
	"creditledger/internal/formula"
	"creditledger/internal/infrastructure/lock"
	"creditledger/internal/membership"
	"creditledger/internal/model"
	"creditledger/internal/storage"
	"creditledger/pkg/idgen"
	"creditledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// Handler 统一处理器
type Handler struct {
	engine *engine.Engine
	store  storage.Store
	rdb    *redis.Client // 用户维度锁，nil 时不加锁（单实例部署）
}

// NewHandler 创建处理器实例
func NewHandler(eng *engine.Engine, store storage.Store, rdb *redis.Client) *Handler {
	return &Handler{
		engine: eng,
		store:  store,
		rdb:    rdb,
	}
}

// withUserLock 按用户维度串行化变更操作。
// 同一用户的并发扣费不加锁会超扣：两个请求都读到余额 100、都扣 100。
// 不同用户的锁互不影响
func (h *Handler) withUserLock(c *gin.Context, userID, requestID string, fn func() error) error {
	if h.rdb == nil {
		return fn()
	}
	if requestID == "" {
		requestID = idgen.GenerateTransactionID()
	}

	userLock := lock.NewUserLock(h.rdb, userID, requestID)
	if err := userLock.Lock(c.Request.Context(), 50*time.Millisecond, 100); err != nil {
		return err
	}
	defer userLock.Unlock(c.Request.Context())

	return fn()
}

// writeEngineError 把引擎错误翻译成业务错误码
func writeEngineError(c *gin.Context, err error) {
	var (
		notFound     *engine.UserNotFoundError
		insufficient *engine.InsufficientCreditsError
		undefTier    *engine.UndefinedTierError
		invalidTier  *engine.InvalidTierChangeError
		cfgErr       *engine.ConfigurationError
		required     *membership.RequiredError
		undefAction  *formula.UndefinedActionError
		missingVar   *formula.MissingVariableError
		evalErr      *formula.EvaluationError
		syntaxErr    *formula.SyntaxError
	)

	switch {
	case errors.As(err, &notFound):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	case errors.As(err, &insufficient):
		response.BusinessError(c, response.CodeInsufficientCredits, err.Error())
	case errors.As(err, &required):
		response.BusinessError(c, response.CodeMembershipRequired, err.Error())
	case errors.As(err, &undefAction):
		response.BusinessError(c, response.CodeUndefinedAction, err.Error())
	case errors.As(err, &undefTier):
		response.BusinessError(c, response.CodeUndefinedTier, err.Error())
	case errors.As(err, &invalidTier):
		response.BusinessError(c, response.CodeInvalidTierChange, err.Error())
	case errors.As(err, &missingVar), errors.As(err, &evalErr), errors.As(err, &syntaxErr):
		response.BusinessError(c, response.CodeFormulaError, err.Error())
	case errors.As(err, &cfgErr):
		response.ParamError(c, err.Error())
	case errors.Is(err, lock.ErrLockFailed):
		response.BusinessError(c, response.CodeDuplicateRequest, "操作过于频繁，请稍后重试")
	default:
		response.ServerError(c, err.Error())
	}
}

// resultPayload 变更操作的统一响应体
func resultPayload(r *model.OperationResult) gin.H {
	return gin.H{
		"transaction_id": r.TransactionID,
		"user_id":        r.UserID,
		"action":         r.Action,
		"amount":         r.Amount,
		"cost":           r.Cost,
		"balance_before": r.BalanceBefore,
		"balance_after":  r.BalanceAfter,
	}
}

// ============================================================
// 用户相关接口
// ============================================================

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	UserID         string  `json:"user_id"`
	Balance        float64 `json:"balance"`
	MembershipTier string  `json:"membership_tier"`
	TierExpiry     string  `json:"tier_expiry"` // RFC3339，空表示永久
}

// CreateUser 创建用户
// POST /api/v1/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.Balance < 0 {
		response.ParamError(c, "balance 不能为负数")
		return
	}

	var expiry *time.Time
	if req.TierExpiry != "" {
		t, err := time.Parse(time.RFC3339, req.TierExpiry)
		if err != nil {
			response.ParamError(c, "tier_expiry 格式错误，需要 RFC3339")
			return
		}
		expiry = &t
	}

	user := &model.User{
		ID:             req.UserID,
		Balance:        req.Balance,
		MembershipTier: req.MembershipTier,
		TierExpiry:     expiry,
	}
	if user.ID == "" {
		user.ID = idgen.GenerateUserID()
	}

	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			response.BusinessError(c, response.CodeDuplicateRequest, "用户已存在")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id": user.ID,
		"balance": user.Balance,
	})
}

// ============================================================
// 积分相关接口
// ============================================================

// GetBalance 查询用户余额
// GET /api/v1/credits/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	balance, err := h.engine.QueryBalance(c.Request.Context(), userID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// ChargeRequest 扣费请求
type ChargeRequest struct {
	RequestID string             `json:"request_id"` // 幂等 key，客户端生成
	UserID    string             `json:"user_id" binding:"required"`
	Action    string             `json:"action" binding:"required"`
	Variables map[string]float64 `json:"variables"`
	Metadata  map[string]any     `json:"metadata"`
}

// Charge 扣费
// POST /api/v1/credits/charge
func (h *Handler) Charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var result *model.OperationResult
	err := h.withUserLock(c, req.UserID, req.RequestID, func() error {
		var err error
		result, err = h.engine.Charge(c.Request.Context(), engine.ChargeParams{
			UserID:         req.UserID,
			Action:         req.Action,
			Variables:      req.Variables,
			IdempotencyKey: req.RequestID,
			Metadata:       req.Metadata,
		})
		return err
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	response.Success(c, resultPayload(result))
}

// RefundRequest 退款请求
type RefundRequest struct {
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id" binding:"required"`
	Amount    float64        `json:"amount" binding:"required,gt=0"`
	Metadata  map[string]any `json:"metadata"`
}

// Refund 退款
// POST /api/v1/credits/refund
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var result *model.OperationResult
	err := h.withUserLock(c, req.UserID, req.RequestID, func() error {
		var err error
		result, err = h.engine.Refund(c.Request.Context(), engine.RefundParams{
			UserID:         req.UserID,
			Amount:         req.Amount,
			IdempotencyKey: req.RequestID,
			Metadata:       req.Metadata,
		})
		return err
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	response.Success(c, resultPayload(result))
}

// GrantRequest 发放请求
type GrantRequest struct {
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id" binding:"required"`
	Amount    float64        `json:"amount" binding:"required,gt=0"`
	Metadata  map[string]any `json:"metadata"`
}

// Grant 发放积分
// POST /api/v1/credits/grant
func (h *Handler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var result *model.OperationResult
	err := h.withUserLock(c, req.UserID, req.RequestID, func() error {
		var err error
		result, err = h.engine.Grant(c.Request.Context(), engine.GrantParams{
			UserID:         req.UserID,
			Amount:         req.Amount,
			IdempotencyKey: req.RequestID,
			Metadata:       req.Metadata,
		})
		return err
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	response.Success(c, resultPayload(result))
}

// TierChangeRequest 等级变更请求
type TierChangeRequest struct {
	RequestID  string         `json:"request_id"`
	UserID     string         `json:"user_id" binding:"required"`
	TargetTier string         `json:"target_tier" binding:"required"`
	Metadata   map[string]any `json:"metadata"`
}

// UpgradeTier 升级会员等级
// POST /api/v1/credits/tier/upgrade
func (h *Handler) UpgradeTier(c *gin.Context) {
	h.changeTier(c, h.engine.UpgradeTier)
}

// DowngradeTier 降级会员等级
// POST /api/v1/credits/tier/downgrade
func (h *Handler) DowngradeTier(c *gin.Context) {
	h.changeTier(c, h.engine.DowngradeTier)
}

func (h *Handler) changeTier(c *gin.Context, op func(ctx context.Context, p engine.TierChangeParams) (*model.OperationResult, error)) {
	var req TierChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var result *model.OperationResult
	err := h.withUserLock(c, req.UserID, req.RequestID, func() error {
		var err error
		result, err = op(c.Request.Context(), engine.TierChangeParams{
			UserID:         req.UserID,
			TargetTier:     req.TargetTier,
			IdempotencyKey: req.RequestID,
			Metadata:       req.Metadata,
		})
		return err
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	response.Success(c, resultPayload(result))
}

// GetHistory 查询流水
// GET /api/v1/credits/history?user_id=xxx&limit=10&offset=0&action=xxx&start_date=xxx&end_date=xxx
func (h *Handler) GetHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	filter := storage.TransactionFilter{
		Action: c.Query("action"),
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.ParamError(c, "limit 参数错误")
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.ParamError(c, "offset 参数错误")
			return
		}
		filter.Offset = n
	}
	if v := c.Query("start_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			response.ParamError(c, "start_date 格式错误")
			return
		}
		filter.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			response.ParamError(c, "end_date 格式错误")
			return
		}
		filter.EndDate = &t
	}

	txns, err := h.engine.GetHistory(c.Request.Context(), userID, filter)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  txns,
		"count": len(txns),
	})
}

// ValidateAccess 校验用户能否执行某个操作
// GET /api/v1/credits/access?user_id=xxx&action=xxx
func (h *Handler) ValidateAccess(c *gin.Context) {
	userID := c.Query("user_id")
	action := c.Query("action")
	if userID == "" || action == "" {
		response.ParamError(c, "user_id 和 action 参数不能为空")
		return
	}

	if err := h.engine.ValidateAccess(c.Request.Context(), userID, action); err != nil {
		writeEngineError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"action":  action,
		"allowed": true,
	})
}

// parseDate 支持 RFC3339 和 2006-01-02 两种格式
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
