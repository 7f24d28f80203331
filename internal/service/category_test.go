package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/chainhash"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/memory"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/service"

	"go.uber.org/zap"
)

func newCategoryService(store *memory.Store) *service.CategoryService {
	return service.NewCategoryService(store, testRetryConfig(), observability.NewMetrics(), zap.NewNop())
}

func TestCategoryAppend_ChainsPerTuple(t *testing.T) {
	svc := newCategoryService(memory.NewStore())
	ctx := context.Background()
	effective := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.Append(ctx, "org-1", "2025-Q1", domain.CategoryPAYGW, domain.DirectionDebit, 10000, effective)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if first.Seq != 1 || first.PrevHash != chainhash.Genesis {
		t.Errorf("expected seq 1 with genesis prev hash, got seq %d prev %q", first.Seq, first.PrevHash)
	}

	second, err := svc.Append(ctx, "org-1", "2025-Q1", domain.CategoryPAYGW, domain.DirectionCredit, 4000, effective)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if second.Seq != 2 || second.PrevHash != first.Hash {
		t.Errorf("expected seq 2 chained to %q, got seq %d prev %q", first.Hash, second.Seq, second.PrevHash)
	}

	// A different tuple starts its own chain at seq 1.
	other, err := svc.Append(ctx, "org-1", "2025-Q1", domain.CategoryGST, domain.DirectionCredit, 2500, effective)
	if err != nil {
		t.Fatalf("other tuple append: %v", err)
	}
	if other.Seq != 1 || other.PrevHash != chainhash.Genesis {
		t.Errorf("expected independent chain for GST, got seq %d prev %q", other.Seq, other.PrevHash)
	}
}

func TestCategoryAppend_RejectsNonPositiveAmount(t *testing.T) {
	svc := newCategoryService(memory.NewStore())
	ctx := context.Background()

	for _, amount := range []int64{0, -100} {
		_, err := svc.Append(ctx, "org-1", "2025-Q1", domain.CategoryPAYGW, domain.DirectionDebit, amount, time.Time{})
		var validation *domain.ErrValidation
		if !errors.As(err, &validation) {
			t.Errorf("amount %d: expected ErrValidation, got %v", amount, err)
		}
	}
}

func TestCategoryAppend_RejectsUnknownCategory(t *testing.T) {
	svc := newCategoryService(memory.NewStore())

	_, err := svc.Append(context.Background(), "org-1", "2025-Q1", "PAYROLL_TAX", domain.DirectionDebit, 100, time.Time{})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if validation.Field != "category" {
		t.Errorf("expected field category, got %q", validation.Field)
	}
}

func TestCategoryAppend_DefaultsEffectiveAt(t *testing.T) {
	svc := newCategoryService(memory.NewStore())

	before := time.Now().Add(-time.Second)
	entry, err := svc.Append(context.Background(), "org-1", "2025-Q1", domain.CategorySuper, domain.DirectionCredit, 100, time.Time{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.EffectiveAt.Before(before) {
		t.Errorf("expected effective_at to default to now, got %v", entry.EffectiveAt)
	}
}
