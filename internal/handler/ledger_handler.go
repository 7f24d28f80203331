package handler

import (
	"net/http"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Journal handlers
// ============================================================

type appendJournalRequest struct {
	Type        string           `json:"type"`
	EventID     string           `json:"event_id"`
	DedupeID    string           `json:"dedupe_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Source      string           `json:"source"`
	Description string           `json:"description,omitempty"`
	Postings    []domain.Posting `json:"postings"`
}

func appendJournalHandler(svc *service.JournalService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /journal")
		defer span.End()

		var req appendJournalRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		// Body field wins; the Idempotency-Key header is the fallback
		// for capture adapters that keep the key out of the payload.
		dedupeID := req.DedupeID
		if dedupeID == "" {
			dedupeID = r.Header.Get("Idempotency-Key")
		}

		result, err := svc.Append(ctx, &domain.AppendJournalInput{
			OrgID:       chi.URLParam(r, "orgId"),
			Type:        req.Type,
			EventID:     req.EventID,
			DedupeID:    dedupeID,
			OccurredAt:  req.OccurredAt,
			Source:      req.Source,
			Description: req.Description,
			Postings:    req.Postings,
		})
		if err != nil {
			metrics.IncrRequest("error")
			handleServiceError(w, err, logger)
			return
		}

		metrics.IncrRequest("success")
		status := http.StatusCreated
		if !result.Created {
			status = http.StatusOK
		}
		writeJSON(w, status, result)
	}
}

func listJournalHandler(svc *service.JournalService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /journal")
		defer span.End()

		entries, err := svc.ListEntries(ctx, chi.URLParam(r, "orgId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if entries == nil {
			entries = []domain.JournalEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// ============================================================
// Category ledger handlers
// ============================================================

type appendCategoryRequest struct {
	Period      string             `json:"period"`
	Category    domain.TaxCategory `json:"category"`
	Direction   domain.Direction   `json:"direction"`
	Amount      int64              `json:"amount"`
	EffectiveAt time.Time          `json:"effective_at,omitempty"`
}

func appendCategoryHandler(svc *service.CategoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /category-entries")
		defer span.End()

		var req appendCategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		entry, err := svc.Append(ctx, chi.URLParam(r, "orgId"), req.Period, req.Category, req.Direction, req.Amount, req.EffectiveAt)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func listCategoryHandler(svc *service.CategoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /category-entries")
		defer span.End()

		entries, err := svc.ListEntries(ctx,
			chi.URLParam(r, "orgId"),
			r.URL.Query().Get("period"),
			domain.TaxCategory(r.URL.Query().Get("category")),
		)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if entries == nil {
			entries = []domain.CategoryLedgerEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// ============================================================
// Balance handlers
// ============================================================

func categoryBalancesHandler(svc *service.BalanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /balances/categories")
		defer span.End()

		balances, err := svc.CategoryBalances(ctx, chi.URLParam(r, "orgId"), r.URL.Query().Get("period"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, balances)
	}
}

func accountBalanceHandler(svc *service.BalanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/{accountId}/balance")
		defer span.End()

		orgID := chi.URLParam(r, "orgId")
		accountID := chi.URLParam(r, "accountId")
		balance, err := svc.AccountBalance(ctx, orgID, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"org_id":     orgID,
			"account_id": accountID,
			"balance":    balance,
		})
	}
}

func accountInflowHandler(svc *service.BalanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /accounts/{accountId}/inflow")
		defer span.End()

		since := r.URL.Query().Get("since")
		windowStart, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC-3339 timestamp")
			return
		}

		orgID := chi.URLParam(r, "orgId")
		accountID := chi.URLParam(r, "accountId")
		inflow, err := svc.Inflow(ctx, orgID, accountID, windowStart)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"org_id":       orgID,
			"account_id":   accountID,
			"window_start": windowStart,
			"inflow":       inflow,
		})
	}
}

// ============================================================
// Verification handlers
// ============================================================

func verifyChainHandler(svc *service.VerifyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /verify")
		defer span.End()

		kind := domain.ChainKind(r.URL.Query().Get("kind"))
		if kind == "" {
			kind = domain.ChainJournal
		}

		result, err := svc.VerifyChain(ctx, domain.ChainSelector{
			Kind:     kind,
			OrgID:    chi.URLParam(r, "orgId"),
			Period:   r.URL.Query().Get("period"),
			Category: domain.TaxCategory(r.URL.Query().Get("category")),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func verifyAllHandler(svc *service.VerifyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /verify/all")
		defer span.End()

		results, err := svc.VerifyAll(ctx, chi.URLParam(r, "orgId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}
