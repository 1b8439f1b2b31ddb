// Package memstore 提供 storage.Store 的内存实现。
// 测试双和嵌入式场景使用；语义与 gormstore 保持一致。
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/storage"
)

// Store 内存存储，所有方法并发安全
type Store struct {
	mu           sync.RWMutex
	users        map[string]*model.User
	transactions []*model.CreditTransaction
	auditLogs    []*model.AuditLog
	idempotency  map[string]*model.IdempotencyRecord

	// 虚拟时钟，测试时可替换
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:       make(map[string]*model.User),
		idempotency: make(map[string]*model.IdempotencyRecord),
		now:         time.Now,
	}
}

// SetClock 替换时间源（测试幂等过期等场景）
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return storage.ErrDuplicateKey
	}
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) UpdateUserBalance(_ context.Context, id string, balance float64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u.Balance = balance
	u.UpdatedAt = s.now()
	return copyUser(u), nil
}

func (s *Store) UpdateUserTier(_ context.Context, id string, tier string, expiry *time.Time) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u.MembershipTier = tier
	u.TierExpiry = copyTime(expiry)
	u.UpdatedAt = s.now()
	return copyUser(u), nil
}

func (s *Store) CreateTransaction(_ context.Context, txn *model.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now()
	}
	s.transactions = append(s.transactions, copyTransaction(txn))
	return nil
}

func (s *Store) GetTransactions(_ context.Context, userID string, f storage.TransactionFilter) ([]*model.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.CreditTransaction
	for _, txn := range s.transactions {
		if txn.UserID != userID {
			continue
		}
		if f.Action != "" && txn.Action != f.Action {
			continue
		}
		if f.StartDate != nil && txn.CreatedAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && txn.CreatedAt.After(*f.EndDate) {
			continue
		}
		matched = append(matched, txn)
	}

	// 创建时间倒序；同一时刻按 ID 倒序保证分页稳定
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	out := make([]*model.CreditTransaction, len(matched))
	for i, txn := range matched {
		out[i] = copyTransaction(txn)
	}
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, copyAudit(entry))
	return nil
}

func (s *Store) GetIdempotencyRecord(_ context.Context, key string) (*model.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idempotency[key]
	if !ok {
		return nil, nil
	}
	// 过期视为不存在，但不删除（读路径不做变更）
	if rec.Expired(s.now()) {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) CreateIdempotencyRecord(_ context.Context, record *model.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.idempotency[record.Key]; ok && !existing.Expired(s.now()) {
		return storage.ErrDuplicateKey
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	cp := *record
	s.idempotency[record.Key] = &cp
	return nil
}

// ----------------------------------------------------------------------------
// 审计/流水的测试辅助读取接口
// ----------------------------------------------------------------------------

// AuditLogs 返回全部审计日志的副本（按写入顺序）
func (s *Store) AuditLogs() []*model.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AuditLog, len(s.auditLogs))
	for i, e := range s.auditLogs {
		out[i] = copyAudit(e)
	}
	return out
}

// TransactionCount 返回流水总数
func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

func copyUser(u *model.User) *model.User {
	cp := *u
	cp.TierExpiry = copyTime(u.TierExpiry)
	return &cp
}

func copyTransaction(t *model.CreditTransaction) *model.CreditTransaction {
	cp := *t
	cp.Metadata = copyMeta(t.Metadata)
	return &cp
}

func copyAudit(a *model.AuditLog) *model.AuditLog {
	cp := *a
	cp.Metadata = copyMeta(a.Metadata)
	return &cp
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
