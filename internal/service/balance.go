package service

import (
	"context"
	"fmt"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var balanceTracer = otel.Tracer("service/balance")

// BalanceService computes net balances from either ledger
// representation. Reads run against a committed snapshot and never take
// the append engines' chain locks; the optional cache trades a short
// staleness window for cheap repeated reads.
type BalanceService struct {
	journal  port.JournalStore
	category port.CategoryStore
	cache    port.Cache[domain.CategoryBalances]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewBalanceService creates the balance aggregator. cache may be nil to
// disable read-side caching.
func NewBalanceService(journal port.JournalStore, category port.CategoryStore, cache port.Cache[domain.CategoryBalances], metrics *observability.Metrics, logger *zap.Logger) *BalanceService {
	return &BalanceService{
		journal:  journal,
		category: category,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// CategoryBalances returns the net balance per tax category for one
// period. Debits subtract, credits add; a period with no entries yields
// a zero total for every category. All arithmetic is int64 cents.
func (s *BalanceService) CategoryBalances(ctx context.Context, orgID, period string) (domain.CategoryBalances, error) {
	ctx, span := balanceTracer.Start(ctx, "BalanceService.CategoryBalances")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID), attribute.String("ledger.period", period))

	if orgID == "" || period == "" {
		return nil, &domain.ErrValidation{Field: "orgId/period", Message: "required"}
	}

	cacheKey := fmt.Sprintf("%s|%s", orgID, period)
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			s.metrics.IncrCacheHit("category_balance")
			return cached, nil
		}
		s.metrics.IncrCacheMiss("category_balance")
	}

	totals, err := s.category.CategoryTotals(ctx, orgID, period)
	if err != nil {
		return nil, err
	}
	// Every known category reports a total, zero included.
	for _, c := range domain.TaxCategories {
		if _, ok := totals[c]; !ok {
			totals[c] = 0
		}
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, totals)
	}
	return totals, nil
}

// AccountBalance sums the posting amounts recorded against one account.
func (s *BalanceService) AccountBalance(ctx context.Context, orgID, accountID string) (int64, error) {
	ctx, span := balanceTracer.Start(ctx, "BalanceService.AccountBalance")
	defer span.End()

	if orgID == "" || accountID == "" {
		return 0, &domain.ErrValidation{Field: "orgId/accountId", Message: "required"}
	}
	return s.journal.AccountBalance(ctx, orgID, accountID)
}

// Inflow sums the positive postings for an account whose parent entry
// occurred at or after windowStart.
func (s *BalanceService) Inflow(ctx context.Context, orgID, accountID string, windowStart time.Time) (int64, error) {
	ctx, span := balanceTracer.Start(ctx, "BalanceService.Inflow")
	defer span.End()

	if orgID == "" || accountID == "" {
		return 0, &domain.ErrValidation{Field: "orgId/accountId", Message: "required"}
	}
	return s.journal.AccountInflow(ctx, orgID, accountID, windowStart.UTC())
}
