package service

import (
	"context"
	"fmt"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var designatedTracer = otel.Tracer("service/designated")

// DesignatedService applies credits and debits to ring-fenced tax
// accounts. Every balance mutation lands together with its transfer
// audit row in one atomic unit; concurrent transfers to the same
// account serialize in the store, so no update is lost.
type DesignatedService struct {
	store   port.DesignatedStore
	audit   port.AuditPublisher // nil disables audit emission
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDesignatedService creates the designated account updater. audit
// may be nil when no audit collaborator is configured.
func NewDesignatedService(store port.DesignatedStore, audit port.AuditPublisher, metrics *observability.Metrics, logger *zap.Logger) *DesignatedService {
	return &DesignatedService{store: store, audit: audit, metrics: metrics, logger: logger}
}

// ProvisionAccount creates a designated account with a zero balance.
// Provisioning happens once during onboarding; transfers never create
// accounts implicitly.
func (s *DesignatedService) ProvisionAccount(ctx context.Context, orgID string, accountType domain.TaxCategory) (*domain.DesignatedAccount, error) {
	ctx, span := designatedTracer.Start(ctx, "DesignatedService.ProvisionAccount")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("account.type", string(accountType)))

	if orgID == "" {
		return nil, &domain.ErrValidation{Field: "orgId", Message: "required"}
	}
	if !accountType.Valid() {
		return nil, &domain.ErrValidation{Field: "accountType", Message: fmt.Sprintf("unknown category %q", accountType)}
	}

	now := time.Now().UTC()
	account := &domain.DesignatedAccount{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		AccountType: accountType,
		Balance:     0,
		UpdatedAt:   now,
		CreatedAt:   now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("designated account provisioned",
		zap.String("org_id", orgID),
		zap.String("account_type", string(accountType)),
		zap.String("account_id", account.ID),
	)
	return account, nil
}

// GetAccount returns one designated account.
func (s *DesignatedService) GetAccount(ctx context.Context, orgID string, accountType domain.TaxCategory) (*domain.DesignatedAccount, error) {
	ctx, span := designatedTracer.Start(ctx, "DesignatedService.GetAccount")
	defer span.End()

	if orgID == "" {
		return nil, &domain.ErrValidation{Field: "orgId", Message: "required"}
	}
	return s.store.GetAccount(ctx, orgID, accountType)
}

// ApplyTransfer credits or debits a designated account and records the
// transfer. Fails with ErrDesignatedAccountNotFound when the account
// was never provisioned; no partial writes occur.
//
// Audit emission policy: the event is published after the transaction
// commits; a publisher failure is logged and counted but does not roll
// back the transfer.
func (s *DesignatedService) ApplyTransfer(ctx context.Context, input *domain.TransferInput) (*domain.TransferResult, error) {
	ctx, span := designatedTracer.Start(ctx, "DesignatedService.ApplyTransfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", input.OrgID),
		attribute.String("account.type", string(input.AccountType)),
		attribute.Int64("transfer.amount", input.Amount),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("designated_transfer", time.Since(start)) }()

	switch {
	case input.OrgID == "":
		return nil, &domain.ErrValidation{Field: "orgId", Message: "required"}
	case !input.AccountType.Valid():
		return nil, &domain.ErrValidation{Field: "accountType", Message: fmt.Sprintf("unknown category %q", input.AccountType)}
	case input.Amount == 0:
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be non-zero"}
	case input.Source == "":
		return nil, &domain.ErrValidation{Field: "source", Message: "required"}
	case input.ActorID == "":
		return nil, &domain.ErrValidation{Field: "actorId", Message: "required"}
	}

	transfer := &domain.DesignatedTransfer{
		ID:        uuid.New().String(),
		OrgID:     input.OrgID,
		Amount:    input.Amount,
		Source:    input.Source,
		ActorID:   input.ActorID,
		CreatedAt: time.Now().UTC(),
	}

	newBalance, err := s.store.ApplyTransfer(ctx, input.OrgID, input.AccountType, transfer)
	if err != nil {
		s.logger.Error("designated transfer failed",
			zap.String("org_id", input.OrgID),
			zap.String("account_type", string(input.AccountType)),
			zap.Int64("amount", input.Amount),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrAppend("designated_transfer")
	s.logger.Info("designated transfer applied",
		zap.String("org_id", input.OrgID),
		zap.String("account_type", string(input.AccountType)),
		zap.String("transfer_id", transfer.ID),
		zap.Int64("amount", input.Amount),
		zap.Int64("new_balance", newBalance),
		zap.String("actor_id", input.ActorID),
	)

	s.emitAudit(ctx, input, transfer, newBalance)

	return &domain.TransferResult{Transfer: transfer, NewBalance: newBalance}, nil
}

func (s *DesignatedService) emitAudit(ctx context.Context, input *domain.TransferInput, transfer *domain.DesignatedTransfer, newBalance int64) {
	if s.audit == nil {
		return
	}

	event := &domain.AuditEvent{
		TransferID:  transfer.ID,
		OrgID:       transfer.OrgID,
		AccountID:   transfer.AccountID,
		AccountType: input.AccountType,
		Amount:      transfer.Amount,
		NewBalance:  newBalance,
		Source:      transfer.Source,
		ActorID:     transfer.ActorID,
		OccurredAt:  transfer.CreatedAt,
	}
	if err := s.audit.Publish(ctx, event); err != nil {
		s.metrics.IncrAuditPublishFailure()
		s.logger.Warn("audit publish failed, transfer already committed",
			zap.String("transfer_id", transfer.ID),
			zap.Error(err),
		)
	}
}

// ListTransfers returns the audit trail for one designated account.
func (s *DesignatedService) ListTransfers(ctx context.Context, orgID, accountID string) ([]domain.DesignatedTransfer, error) {
	ctx, span := designatedTracer.Start(ctx, "DesignatedService.ListTransfers")
	defer span.End()

	if orgID == "" || accountID == "" {
		return nil, &domain.ErrValidation{Field: "orgId/accountId", Message: "required"}
	}
	return s.store.ListTransfers(ctx, orgID, accountID)
}
