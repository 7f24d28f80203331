package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/handler"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/cache"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/memory"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/resilience"
	"github.com/taxtrail/compliance-ledger-go/internal/service"

	"go.uber.org/zap"
)

func newServer() http.Handler {
	store := memory.NewStore()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	retry := resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxConcurrency: 8}

	svcs := handler.Services{
		Journal:    service.NewJournalService(store, retry, metrics, logger),
		Category:   service.NewCategoryService(store, retry, metrics, logger),
		Balance:    service.NewBalanceService(store, store, cache.New[domain.CategoryBalances](time.Minute), metrics, logger),
		Verify:     service.NewVerifyService(store, store, 8, metrics, logger),
		Designated: service.NewDesignatedService(store, nil, metrics, logger),
	}
	readyz := func(r *http.Request) error { return store.Ping(r.Context()) }
	return handler.NewRouter(svcs, readyz, metrics, logger)
}

func post(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestIntegration_LedgerFlow walks a full reporting period: journal
// appends with a replay, category entries, balance reads, designated
// sweeps and a final verification sweep.
func TestIntegration_LedgerFlow(t *testing.T) {
	router := newServer()

	// --- Journal appends ---
	journalEntry := map[string]any{
		"type":        "payroll_run",
		"event_id":    "ev-20250314",
		"dedupe_id":   "dd-1",
		"occurred_at": "2025-03-14T10:00:00Z",
		"source":      "payroll",
		"postings": []map[string]any{
			{"account_id": "acct-operating", "amount": -185000},
			{"account_id": "acct-wages", "amount": 140000},
			{"account_id": "acct-paygw-withheld", "amount": 45000},
		},
	}
	rec := post(t, router, "/v1/orgs/org-1/journal", journalEntry)
	if rec.Code != http.StatusCreated {
		t.Fatalf("journal append: expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	// Same dedupe key again: replayed, not duplicated.
	rec = post(t, router, "/v1/orgs/org-1/journal", journalEntry)
	if rec.Code != http.StatusOK {
		t.Fatalf("journal replay: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var replay domain.AppendJournalResult
	if err := json.NewDecoder(rec.Body).Decode(&replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replay.Created {
		t.Error("expected created=false on replay")
	}

	// --- Category ledger ---
	for _, e := range []struct {
		category  string
		direction string
		amount    int64
	}{
		{"PAYGW", "debit", 45000},
		{"PAYGW", "credit", 45000},
		{"GST", "debit", 12000},
	} {
		rec = post(t, router, "/v1/orgs/org-1/category-entries", map[string]any{
			"period":    "2025-Q1",
			"category":  e.category,
			"direction": e.direction,
			"amount":    e.amount,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("category append %s/%s: expected 201, got %d. Body: %s",
				e.category, e.direction, rec.Code, rec.Body.String())
		}
	}

	// --- Balances ---
	rec = get(t, router, "/v1/orgs/org-1/balances/categories?period=2025-Q1")
	if rec.Code != http.StatusOK {
		t.Fatalf("balances: expected 200, got %d", rec.Code)
	}
	var balances domain.CategoryBalances
	if err := json.NewDecoder(rec.Body).Decode(&balances); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if balances[domain.CategoryPAYGW] != 0 {
		t.Errorf("expected settled PAYGW balance 0, got %d", balances[domain.CategoryPAYGW])
	}
	if balances[domain.CategoryGST] != -12000 {
		t.Errorf("expected GST balance -12000, got %d", balances[domain.CategoryGST])
	}
	if balances[domain.CategorySuper] != 0 {
		t.Errorf("expected untouched SUPER balance 0, got %d", balances[domain.CategorySuper])
	}

	rec = get(t, router, "/v1/orgs/org-1/accounts/acct-paygw-withheld/balance")
	if rec.Code != http.StatusOK {
		t.Fatalf("account balance: expected 200, got %d", rec.Code)
	}
	var accountBalance struct {
		Balance int64 `json:"balance"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&accountBalance); err != nil {
		t.Fatalf("decode account balance: %v", err)
	}
	if accountBalance.Balance != 45000 {
		t.Errorf("expected account balance 45000, got %d", accountBalance.Balance)
	}

	// --- Designated account sweep ---
	rec = post(t, router, "/v1/orgs/org-1/designated-accounts", map[string]any{"account_type": "PAYGW"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("provision: expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	rec = post(t, router, "/v1/orgs/org-1/designated-transfers", map[string]any{
		"account_type": "PAYGW",
		"amount":       45000,
		"source":       "scheduled_sweep",
		"actor_id":     "system",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer: expected 201, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var transfer domain.TransferResult
	if err := json.NewDecoder(rec.Body).Decode(&transfer); err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	if transfer.NewBalance != 45000 {
		t.Errorf("expected designated balance 45000, got %d", transfer.NewBalance)
	}

	// --- Verification sweep ---
	rec = get(t, router, "/v1/orgs/org-1/verify/all")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify sweep: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var results []domain.VerifyResult
	if err := json.NewDecoder(rec.Body).Decode(&results); err != nil {
		t.Fatalf("decode verify results: %v", err)
	}
	// Journal chain plus the two populated tuple chains.
	if len(results) != 3 {
		t.Fatalf("expected 3 verify results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.OK {
			t.Errorf("expected intact chain for %+v, failed at %d (%s)",
				r.Selector, r.FirstInvalidIndex, r.Reason)
		}
	}
}

// TestIntegration_ConcurrentAppends hammers one org's journal from many
// goroutines and checks the chain stays gapless and verifiable.
func TestIntegration_ConcurrentAppends(t *testing.T) {
	router := newServer()

	const n = 25
	done := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			rec := post(t, router, "/v1/orgs/org-1/journal", map[string]any{
				"type":        "invoice_paid",
				"event_id":    fmt.Sprintf("ev-%d", i),
				"dedupe_id":   fmt.Sprintf("dd-%d", i),
				"occurred_at": "2025-03-14T10:00:00Z",
				"source":      "billing",
				"postings": []map[string]any{
					{"account_id": "acct-receivable", "amount": -1000},
					{"account_id": "acct-operating", "amount": 1000},
				},
			})
			done <- rec.Code
		}(i)
	}
	for i := 0; i < n; i++ {
		if code := <-done; code != http.StatusCreated {
			t.Errorf("append %d: expected 201, got %d", i, code)
		}
	}

	rec := get(t, router, "/v1/orgs/org-1/journal")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var entries []domain.JournalEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i)+1 {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}

	rec = get(t, router, "/v1/orgs/org-1/verify?kind=journal")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", rec.Code)
	}
	var result domain.VerifyResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode verify result: %v", err)
	}
	if !result.OK || result.Entries != n {
		t.Errorf("expected OK chain with %d entries, got %+v", n, result)
	}
}
