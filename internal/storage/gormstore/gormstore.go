// Package gormstore 基于 GORM + MySQL 的存储适配器。
//
// 事务语义：调用方通过 WithTx 把 *gorm.DB 事务句柄放进 context，
// 同一个 context 下的所有操作会落在同一个事务里；context 里没有
// 事务句柄时直接使用根连接。
package gormstore

import (
	"context"
	"errors"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/storage"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx 把事务句柄绑定到 context，后续存储操作都会走这个事务
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Store GORM 存储实现
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ storage.Store = (*Store)(nil)

// conn 返回 context 里的事务句柄，没有则返回根连接
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// Transaction 在一个数据库事务里执行 fn，fn 内通过 ctx 拿到事务句柄
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.conn(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	err := s.conn(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrDuplicateKey
	}
	return err
}

func (s *Store) UpdateUserBalance(ctx context.Context, id string, balance float64) (*model.User, error) {
	db := s.conn(ctx)
	result := db.Model(&model.User{}).
		Where("id = ?", id).
		Update("balance", balance)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) UpdateUserTier(ctx context.Context, id string, tier string, expiry *time.Time) (*model.User, error) {
	db := s.conn(ctx)
	result := db.Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"membership_tier": tier,
			"tier_expiry":     expiry,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) CreateTransaction(ctx context.Context, txn *model.CreditTransaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	err := s.conn(ctx).Create(txn).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrDuplicateKey
	}
	return err
}

func (s *Store) GetTransactions(ctx context.Context, userID string, f storage.TransactionFilter) ([]*model.CreditTransaction, error) {
	query := s.conn(ctx).
		Model(&model.CreditTransaction{}).
		Where("user_id = ?", userID)

	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if f.StartDate != nil {
		query = query.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		query = query.Where("created_at <= ?", *f.EndDate)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var txns []*model.CreditTransaction
	// 同一时刻的流水按 ID 倒序，保证分页结果稳定
	err := query.Order("created_at DESC, id DESC").Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.conn(ctx).Create(entry).Error
}

func (s *Store) GetIdempotencyRecord(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	var record model.IdempotencyRecord
	// 过期记录等同于不存在，由后台清理或被新记录覆盖
	err := s.conn(ctx).
		Where("`key` = ? AND expires_at > ?", key, time.Now()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Store) CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	err := s.conn(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrDuplicateKey
	}
	return err
}
