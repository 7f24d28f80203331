package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/chainhash"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/resilience"
	"github.com/taxtrail/compliance-ledger-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var categoryTracer = otel.Tracer("service/category")

// CategoryService is the append engine for the category ledger. Each
// entry carries one unsigned amount and a direction; the hash chain is
// scoped to the (org, period, category) tuple, not the org as a whole.
type CategoryService struct {
	store   port.CategoryStore
	locks   *chainLocks
	retry   resilience.Config
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCategoryService creates the category ledger append engine.
func NewCategoryService(store port.CategoryStore, retry resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *CategoryService {
	return &CategoryService{
		store:   store,
		locks:   newChainLocks(),
		retry:   retry,
		metrics: metrics,
		logger:  logger,
	}
}

// categoryChainKey is the lock and conflict key for one tuple chain.
func categoryChainKey(orgID, period string, category domain.TaxCategory) string {
	return fmt.Sprintf("category|%s|%s|%s", orgID, period, category)
}

// Append records one debit or credit against a tax category for a
// period. EffectiveAt defaults to the current time when zero.
func (s *CategoryService) Append(ctx context.Context, orgID, period string, category domain.TaxCategory, direction domain.Direction, amount int64, effectiveAt time.Time) (*domain.CategoryLedgerEntry, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", orgID),
		attribute.String("ledger.period", period),
		attribute.String("ledger.category", string(category)),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("category_append", time.Since(start)) }()

	switch {
	case orgID == "":
		return nil, &domain.ErrValidation{Field: "orgId", Message: "required"}
	case period == "":
		return nil, &domain.ErrValidation{Field: "period", Message: "required"}
	case !category.Valid():
		return nil, &domain.ErrValidation{Field: "category", Message: fmt.Sprintf("unknown category %q", category)}
	case !direction.Valid():
		return nil, &domain.ErrValidation{Field: "direction", Message: fmt.Sprintf("unknown direction %q", direction)}
	case amount <= 0:
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be a positive integer amount in cents"}
	}

	if effectiveAt.IsZero() {
		effectiveAt = time.Now()
	}
	// Rounded to the microsecond before hashing: timestamptz keeps
	// microseconds, and the verifier recomputes from what the store
	// returns.
	effectiveAt = effectiveAt.UTC().Round(time.Microsecond)

	unlock := s.locks.Lock(categoryChainKey(orgID, period, category))
	defer unlock()

	var entry *domain.CategoryLedgerEntry
	err := resilience.RetryWithBackoff(ctx, s.retry, func() error {
		last, err := s.store.LastCategoryEntry(ctx, orgID, period, category)
		if err != nil {
			return err
		}

		nextSeq := int64(1)
		prevHash := chainhash.Genesis
		if last != nil {
			nextSeq = last.Seq + 1
			prevHash = last.Hash
		}

		e := &domain.CategoryLedgerEntry{
			ID:          uuid.New().String(),
			OrgID:       orgID,
			Period:      period,
			Category:    category,
			Direction:   direction,
			Amount:      amount,
			EffectiveAt: effectiveAt,
			PrevHash:    prevHash,
			Seq:         nextSeq,
			CreatedAt:   time.Now().UTC(),
		}
		e.Hash = chainhash.CategoryEntryHash(prevHash, e)

		if err := s.store.InsertCategoryEntry(ctx, e); err != nil {
			var conflict *domain.ErrConflict
			if errors.As(err, &conflict) {
				s.metrics.IncrConflictRetry("category")
			}
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		s.logger.Error("category append failed",
			zap.String("org_id", orgID),
			zap.String("period", period),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrAppend("category")
	s.logger.Info("category entry appended",
		zap.String("org_id", orgID),
		zap.String("period", period),
		zap.String("category", string(category)),
		zap.String("direction", string(direction)),
		zap.Int64("amount", amount),
		zap.Int64("seq", entry.Seq),
	)
	return entry, nil
}

// ListEntries returns one tuple chain ascending by sequence.
func (s *CategoryService) ListEntries(ctx context.Context, orgID, period string, category domain.TaxCategory) ([]domain.CategoryLedgerEntry, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.ListEntries")
	defer span.End()

	if orgID == "" || period == "" {
		return nil, &domain.ErrValidation{Field: "orgId/period", Message: "required"}
	}
	if !category.Valid() {
		return nil, &domain.ErrValidation{Field: "category", Message: fmt.Sprintf("unknown category %q", category)}
	}
	return s.store.ListCategoryEntries(ctx, orgID, period, category)
}
