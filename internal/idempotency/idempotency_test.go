package idempotency

import (
	"context"
	"testing"
	"time"

	"creditledger/internal/model"
	"creditledger/internal/storage/memstore"
)

func result(txnID string) *model.OperationResult {
	return &model.OperationResult{
		Success:       true,
		TransactionID: txnID,
		UserID:        "USR1",
		Action:        model.ActionCharge,
		Amount:        -10,
		Cost:          10,
		BalanceBefore: 100,
		BalanceAfter:  90,
	}
}

func TestSaveThenGet(t *testing.T) {
	g := New(memstore.New(), true, time.Hour)
	ctx := context.Background()

	if err := g.Save(ctx, "key-1", result("TXN1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := g.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil, want cached result")
	}
	if *got != *result("TXN1") {
		t.Errorf("cached result mismatch: %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	g := New(memstore.New(), true, time.Hour)

	got, err := g.Get(context.Background(), "unknown")
	if err != nil || got != nil {
		t.Errorf("Get(unknown) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestDisabledGuardIsNoop(t *testing.T) {
	store := memstore.New()
	g := New(store, false, time.Hour)
	ctx := context.Background()

	if err := g.Save(ctx, "key-1", result("TXN1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := g.Get(ctx, "key-1")
	if err != nil || got != nil {
		t.Errorf("disabled Get = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestEmptyKeyIsNoop(t *testing.T) {
	g := New(memstore.New(), true, time.Hour)
	ctx := context.Background()

	if err := g.Save(ctx, "", result("TXN1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := g.Get(ctx, "")
	if err != nil || got != nil {
		t.Errorf("Get(\"\") = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestExpiredRecordTreatedAsAbsent(t *testing.T) {
	store := memstore.New()
	g := New(store, true, time.Minute)
	ctx := context.Background()

	base := time.Now()
	g.now = func() time.Time { return base }

	if err := g.Save(ctx, "key-1", result("TXN1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// TTL 内命中
	if got, _ := g.Get(ctx, "key-1"); got == nil {
		t.Fatal("expected hit before expiry")
	}

	// 恰好到达过期时刻：now >= expiresAt 视为不存在
	g.now = func() time.Time { return base.Add(time.Minute) }
	if got, _ := g.Get(ctx, "key-1"); got != nil {
		t.Error("expected miss at expiry instant")
	}

	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	if got, _ := g.Get(ctx, "key-1"); got != nil {
		t.Error("expected miss after expiry")
	}
}

func TestSaveDuplicateKeyIsBenign(t *testing.T) {
	g := New(memstore.New(), true, time.Hour)
	ctx := context.Background()

	if err := g.Save(ctx, "key-1", result("TXN1")); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := g.Save(ctx, "key-1", result("TXN2")); err != nil {
		t.Fatalf("duplicate Save should not error: %v", err)
	}

	// 先到者生效
	got, _ := g.Get(ctx, "key-1")
	if got == nil || got.TransactionID != "TXN1" {
		t.Errorf("cached result = %+v, want TXN1", got)
	}
}
