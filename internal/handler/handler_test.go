package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creditledger/internal/engine"
	"creditledger/internal/formula"
	"creditledger/internal/model"
	"creditledger/internal/storage/memstore"
	"creditledger/pkg/response"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	eng, err := engine.New(store, engine.Config{
		Costs: formula.CostTable{
			"generate-post": {"default": formula.Fixed(10)},
		},
		Membership: engine.MembershipConfig{
			Tiers:       map[string]int{"premium": 1},
			CreditsCaps: map[string]float64{"premium": 1000},
		},
		Idempotency: engine.IdempotencyConfig{Enabled: true, TTL: time.Hour},
		Audit:       engine.AuditConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}

	// rdb 为 nil：测试环境单实例，不走分布式锁
	return SetupRouter(eng, store, nil), store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %s", w.Body.String())
	}
	return w, resp
}

func seedHTTPUser(t *testing.T, store *memstore.Store, id string, balance float64) {
	t.Helper()
	if err := store.CreateUser(context.Background(), &model.User{ID: id, Balance: balance}); err != nil {
		t.Fatal(err)
	}
}

func TestChargeEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	seedHTTPUser(t, store, "USR1", 100)

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/credits/charge", gin.H{
		"user_id": "USR1",
		"action":  "generate-post",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.Code != response.CodeSuccess {
		t.Fatalf("code = %d, message = %s", resp.Code, resp.Message)
	}

	data := resp.Data.(map[string]interface{})
	if data["balance_after"].(float64) != 90 {
		t.Errorf("balance_after = %v, want 90", data["balance_after"])
	}
	if data["transaction_id"].(string) == "" {
		t.Error("expected transaction_id")
	}
}

func TestChargeEndpointInsufficientCredits(t *testing.T) {
	router, store := newTestRouter(t)
	seedHTTPUser(t, store, "USR1", 5)

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/credits/charge", gin.H{
		"user_id": "USR1",
		"action":  "generate-post",
	})
	if resp.Code != response.CodeInsufficientCredits {
		t.Errorf("code = %d, want %d", resp.Code, response.CodeInsufficientCredits)
	}
}

func TestChargeEndpointUserNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/credits/charge", gin.H{
		"user_id": "ghost",
		"action":  "generate-post",
	})
	if resp.Code != response.CodeUserNotFound {
		t.Errorf("code = %d, want %d", resp.Code, response.CodeUserNotFound)
	}
}

func TestChargeEndpointIdempotentReplay(t *testing.T) {
	router, store := newTestRouter(t)
	seedHTTPUser(t, store, "USR1", 100)

	body := gin.H{
		"user_id":    "USR1",
		"action":     "generate-post",
		"request_id": "req-1",
	}
	_, first := doJSON(t, router, http.MethodPost, "/api/v1/credits/charge", body)
	_, second := doJSON(t, router, http.MethodPost, "/api/v1/credits/charge", body)

	firstID := first.Data.(map[string]interface{})["transaction_id"]
	secondID := second.Data.(map[string]interface{})["transaction_id"]
	if firstID != secondID {
		t.Errorf("transaction ids differ: %v vs %v", firstID, secondID)
	}
	if store.TransactionCount() != 1 {
		t.Errorf("transactions = %d, want 1", store.TransactionCount())
	}
}

func TestBalanceEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	seedHTTPUser(t, store, "USR1", 42.5)

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/credits/balance?user_id=USR1", nil)
	if w.Code != http.StatusOK || resp.Code != response.CodeSuccess {
		t.Fatalf("status = %d, code = %d", w.Code, resp.Code)
	}
	if resp.Data.(map[string]interface{})["balance"].(float64) != 42.5 {
		t.Errorf("balance = %v", resp.Data)
	}

	_, resp = doJSON(t, router, http.MethodGet, "/api/v1/credits/balance", nil)
	if resp.Code != response.CodeParamError {
		t.Errorf("missing user_id: code = %d, want %d", resp.Code, response.CodeParamError)
	}
}

func TestCreateUserEndpoint(t *testing.T) {
	router, store := newTestRouter(t)

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/users", gin.H{
		"user_id": "USR1",
		"balance": 100,
	})
	if resp.Code != response.CodeSuccess {
		t.Fatalf("code = %d, message = %s", resp.Code, resp.Message)
	}

	user, err := store.GetUserByID(context.Background(), "USR1")
	if err != nil || user == nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if user.Balance != 100 {
		t.Errorf("balance = %v", user.Balance)
	}

	// 重复创建
	_, resp = doJSON(t, router, http.MethodPost, "/api/v1/users", gin.H{
		"user_id": "USR1",
	})
	if resp.Code != response.CodeDuplicateRequest {
		t.Errorf("duplicate create: code = %d, want %d", resp.Code, response.CodeDuplicateRequest)
	}
}

func TestTierUpgradeEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	seedHTTPUser(t, store, "USR1", 100)

	_, resp := doJSON(t, router, http.MethodPost, "/api/v1/credits/tier/upgrade", gin.H{
		"user_id":     "USR1",
		"target_tier": "premium",
	})
	if resp.Code != response.CodeSuccess {
		t.Fatalf("code = %d, message = %s", resp.Code, resp.Message)
	}

	user, _ := store.GetUserByID(context.Background(), "USR1")
	if user.MembershipTier != "premium" || user.Balance != 1000 {
		t.Errorf("user = tier %q balance %v", user.MembershipTier, user.Balance)
	}

	// 目标等级未定义
	_, resp = doJSON(t, router, http.MethodPost, "/api/v1/credits/tier/upgrade", gin.H{
		"user_id":     "USR1",
		"target_tier": "gold",
	})
	if resp.Code != response.CodeUndefinedTier {
		t.Errorf("undefined tier: code = %d, want %d", resp.Code, response.CodeUndefinedTier)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	seedHTTPUser(t, store, "USR1", 100)

	for i := 0; i < 3; i++ {
		_, resp := doJSON(t, router, http.MethodPost, "/api/v1/credits/charge", gin.H{
			"user_id": "USR1",
			"action":  "generate-post",
		})
		if resp.Code != response.CodeSuccess {
			t.Fatalf("charge %d failed: %s", i, resp.Message)
		}
	}

	_, resp := doJSON(t, router, http.MethodGet, "/api/v1/credits/history?user_id=USR1&limit=2", nil)
	if resp.Code != response.CodeSuccess {
		t.Fatalf("code = %d", resp.Code)
	}
	data := resp.Data.(map[string]interface{})
	if data["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", data["count"])
	}

	_, resp = doJSON(t, router, http.MethodGet, "/api/v1/credits/history?user_id=USR1&limit=abc", nil)
	if resp.Code != response.CodeParamError {
		t.Errorf("bad limit: code = %d, want %d", resp.Code, response.CodeParamError)
	}
}
