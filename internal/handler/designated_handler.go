package handler

import (
	"net/http"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Designated account handlers
// ============================================================

type provisionAccountRequest struct {
	AccountType domain.TaxCategory `json:"account_type"`
}

func provisionAccountHandler(svc *service.DesignatedService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /designated-accounts")
		defer span.End()

		var req provisionAccountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		account, err := svc.ProvisionAccount(ctx, chi.URLParam(r, "orgId"), req.AccountType)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

func getDesignatedAccountHandler(svc *service.DesignatedService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /designated-accounts/{accountType}")
		defer span.End()

		account, err := svc.GetAccount(ctx,
			chi.URLParam(r, "orgId"),
			domain.TaxCategory(chi.URLParam(r, "accountType")),
		)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}

type applyTransferRequest struct {
	AccountType domain.TaxCategory `json:"account_type"`
	Amount      int64              `json:"amount"`
	Source      string             `json:"source"`
	ActorID     string             `json:"actor_id"`
}

func applyTransferHandler(svc *service.DesignatedService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /designated-transfers")
		defer span.End()

		var req applyTransferRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		result, err := svc.ApplyTransfer(ctx, &domain.TransferInput{
			OrgID:       chi.URLParam(r, "orgId"),
			AccountType: req.AccountType,
			Amount:      req.Amount,
			Source:      req.Source,
			ActorID:     req.ActorID,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func listTransfersHandler(svc *service.DesignatedService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /designated-accounts/{accountType}/transfers")
		defer span.End()

		orgID := chi.URLParam(r, "orgId")
		account, err := svc.GetAccount(ctx, orgID, domain.TaxCategory(chi.URLParam(r, "accountType")))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		transfers, err := svc.ListTransfers(ctx, orgID, account.ID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if transfers == nil {
			transfers = []domain.DesignatedTransfer{}
		}
		writeJSON(w, http.StatusOK, transfers)
	}
}
