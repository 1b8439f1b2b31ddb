// Package audit 实现操作审计。
//
// 引擎每次调用的最终结果（成功或失败）都会写一条审计日志，
// 只追加不修改；可选地把每条日志异步投递给事件发布器（如 Kafka）。
package audit

import (
	"context"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/storage"
	"creditledger/pkg/idgen"
	"creditledger/pkg/logger"
)

// Publisher 审计事件发布接口，投递失败不影响主流程
type Publisher interface {
	Publish(entry *model.AuditLog) error
}

// Recorder 审计记录器
type Recorder struct {
	store     storage.Store
	enabled   bool
	publisher Publisher
	log       logger.Logger
}

// New 创建审计记录器；未启用时所有方法为空操作
func New(store storage.Store, enabled bool, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Recorder{store: store, enabled: enabled, log: log}
}

// WithPublisher 挂载事件发布器（可选）
func (r *Recorder) WithPublisher(p Publisher) *Recorder {
	r.publisher = p
	return r
}

// Enabled 返回审计是否启用
func (r *Recorder) Enabled() bool { return r.enabled }

// Success 记录一次成功操作
func (r *Recorder) Success(ctx context.Context, userID, action string, metadata map[string]any) error {
	return r.record(ctx, &model.AuditLog{
		UserID:   userID,
		Action:   action,
		Status:   model.AuditStatusSuccess,
		Metadata: metadata,
	})
}

// Failure 记录一次失败操作，errorMessage 来自导致失败的错误
func (r *Recorder) Failure(ctx context.Context, userID, action string, opErr error, metadata map[string]any) error {
	return r.record(ctx, &model.AuditLog{
		UserID:       userID,
		Action:       action,
		Status:       model.AuditStatusFailed,
		Metadata:     metadata,
		ErrorMessage: opErr.Error(),
	})
}

func (r *Recorder) record(ctx context.Context, entry *model.AuditLog) error {
	if !r.enabled {
		return nil
	}

	entry.ID = idgen.GenerateAuditID()
	entry.CreatedAt = time.Now()

	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		return err
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(entry); err != nil {
			// 投递失败只记日志，审计以数据库为准
			r.log.Warn("audit event publish failed", logger.Fields{
				"audit_id": entry.ID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}
