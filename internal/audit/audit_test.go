package audit

import (
	"context"
	"errors"
	"testing"

	"creditledger/internal/model"
	"creditledger/internal/storage/memstore"
)

type capturePublisher struct {
	entries []*model.AuditLog
	err     error
}

func (p *capturePublisher) Publish(entry *model.AuditLog) error {
	p.entries = append(p.entries, entry)
	return p.err
}

func TestSuccessEntry(t *testing.T) {
	store := memstore.New()
	r := New(store, true, nil)

	err := r.Success(context.Background(), "USR1", model.ActionCharge, map[string]any{"cost": 10.0})
	if err != nil {
		t.Fatalf("Success failed: %v", err)
	}

	logs := store.AuditLogs()
	if len(logs) != 1 {
		t.Fatalf("audit logs = %d, want 1", len(logs))
	}
	entry := logs[0]
	if entry.Status != model.AuditStatusSuccess {
		t.Errorf("Status = %q", entry.Status)
	}
	if entry.UserID != "USR1" || entry.Action != model.ActionCharge {
		t.Errorf("entry = %+v", entry)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("expected generated id and timestamp")
	}
	if entry.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", entry.ErrorMessage)
	}
	if entry.Metadata["cost"] != 10.0 {
		t.Errorf("Metadata = %v", entry.Metadata)
	}
}

func TestFailureEntry(t *testing.T) {
	store := memstore.New()
	r := New(store, true, nil)

	opErr := errors.New("insufficient credits: required 100, available 50")
	err := r.Failure(context.Background(), "USR1", model.ActionCharge, opErr, map[string]any{"required": 100.0})
	if err != nil {
		t.Fatalf("Failure failed: %v", err)
	}

	logs := store.AuditLogs()
	if len(logs) != 1 {
		t.Fatalf("audit logs = %d, want 1", len(logs))
	}
	if logs[0].Status != model.AuditStatusFailed {
		t.Errorf("Status = %q", logs[0].Status)
	}
	if logs[0].ErrorMessage != opErr.Error() {
		t.Errorf("ErrorMessage = %q", logs[0].ErrorMessage)
	}
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	store := memstore.New()
	r := New(store, false, nil)

	_ = r.Success(context.Background(), "USR1", model.ActionGrant, nil)
	_ = r.Failure(context.Background(), "USR1", model.ActionGrant, errors.New("boom"), nil)

	if got := len(store.AuditLogs()); got != 0 {
		t.Errorf("audit logs = %d, want 0", got)
	}
}

func TestPublisherFanOut(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{}
	r := New(store, true, nil).WithPublisher(pub)

	if err := r.Success(context.Background(), "USR1", model.ActionRefund, nil); err != nil {
		t.Fatalf("Success failed: %v", err)
	}

	if len(pub.entries) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.entries))
	}
	if pub.entries[0].Action != model.ActionRefund {
		t.Errorf("published entry = %+v", pub.entries[0])
	}
}

func TestPublisherFailureDoesNotFailRecord(t *testing.T) {
	store := memstore.New()
	pub := &capturePublisher{err: errors.New("kafka down")}
	r := New(store, true, nil).WithPublisher(pub)

	if err := r.Success(context.Background(), "USR1", model.ActionGrant, nil); err != nil {
		t.Fatalf("Success should swallow publish errors, got %v", err)
	}
	if got := len(store.AuditLogs()); got != 1 {
		t.Errorf("audit logs = %d, want 1", got)
	}
}
