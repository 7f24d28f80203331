package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/chainhash"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/memory"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/resilience"
	"github.com/taxtrail/compliance-ledger-go/internal/service"

	"go.uber.org/zap"
)

func testRetryConfig() resilience.Config {
	return resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxConcurrency: 8}
}

func newJournalService(store *memory.Store) *service.JournalService {
	return service.NewJournalService(store, testRetryConfig(), observability.NewMetrics(), zap.NewNop())
}

func balancedInput(orgID, dedupeID string) *domain.AppendJournalInput {
	return &domain.AppendJournalInput{
		OrgID:      orgID,
		Type:       "payroll_run",
		EventID:    "ev-" + dedupeID,
		DedupeID:   dedupeID,
		OccurredAt: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Source:     "payroll",
		Postings: []domain.Posting{
			{AccountID: "acct-A", Amount: 500},
			{AccountID: "acct-B", Amount: -500},
		},
	}
}

func TestJournalAppend_FirstEntry(t *testing.T) {
	svc := newJournalService(memory.NewStore())

	result, err := svc.Append(context.Background(), balancedInput("org-1", "dd-1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Created {
		t.Error("expected created=true for a new entry")
	}
	if result.Entry.Seq != 1 {
		t.Errorf("expected seq 1, got %d", result.Entry.Seq)
	}
	if result.Entry.PrevHash != chainhash.Genesis {
		t.Errorf("expected genesis prev hash, got %q", result.Entry.PrevHash)
	}
	if result.Entry.Hash == "" {
		t.Error("expected entry hash to be set")
	}
	if result.Entry.ID == "" {
		t.Error("expected entry id to be set")
	}
}

func TestJournalAppend_ChainsToPrevious(t *testing.T) {
	svc := newJournalService(memory.NewStore())
	ctx := context.Background()

	first, err := svc.Append(ctx, balancedInput("org-1", "dd-1"))
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	second, err := svc.Append(ctx, balancedInput("org-1", "dd-2"))
	if err != nil {
		t.Fatalf("second append: %v", err)
	}

	if second.Entry.Seq != 2 {
		t.Errorf("expected seq 2, got %d", second.Entry.Seq)
	}
	if second.Entry.PrevHash != first.Entry.Hash {
		t.Errorf("expected prev hash %q, got %q", first.Entry.Hash, second.Entry.PrevHash)
	}
}

func TestJournalAppend_IdempotentReplay(t *testing.T) {
	svc := newJournalService(memory.NewStore())
	ctx := context.Background()

	first, err := svc.Append(ctx, balancedInput("org-1", "dd-1"))
	if err != nil {
		t.Fatalf("first append: %v", err)
	}

	replay, err := svc.Append(ctx, balancedInput("org-1", "dd-1"))
	if err != nil {
		t.Fatalf("replay append: %v", err)
	}
	if replay.Created {
		t.Error("expected created=false on replay")
	}
	if replay.Entry.ID != first.Entry.ID {
		t.Errorf("expected original entry id %q, got %q", first.Entry.ID, replay.Entry.ID)
	}
	if replay.Entry.Seq != first.Entry.Seq {
		t.Errorf("expected original seq %d, got %d", first.Entry.Seq, replay.Entry.Seq)
	}
	if replay.Entry.Hash != first.Entry.Hash {
		t.Errorf("expected original hash %q, got %q", first.Entry.Hash, replay.Entry.Hash)
	}

	entries, err := svc.ListEntries(ctx, "org-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 stored entry after replay, got %d", len(entries))
	}
}

func TestJournalAppend_DedupeScopedPerOrg(t *testing.T) {
	svc := newJournalService(memory.NewStore())
	ctx := context.Background()

	if _, err := svc.Append(ctx, balancedInput("org-1", "dd-1")); err != nil {
		t.Fatalf("org-1 append: %v", err)
	}
	result, err := svc.Append(ctx, balancedInput("org-2", "dd-1"))
	if err != nil {
		t.Fatalf("org-2 append: %v", err)
	}
	if !result.Created {
		t.Error("expected created=true: dedupe keys are scoped per org")
	}
}

func TestJournalAppend_RejectsUnbalancedPostings(t *testing.T) {
	svc := newJournalService(memory.NewStore())

	input := balancedInput("org-1", "dd-1")
	input.Postings = []domain.Posting{
		{AccountID: "acct-A", Amount: 500},
		{AccountID: "acct-B", Amount: -499},
	}

	_, err := svc.Append(context.Background(), input)
	var unbalanced *domain.ErrUnbalancedJournal
	if !errors.As(err, &unbalanced) {
		t.Fatalf("expected ErrUnbalancedJournal, got %v", err)
	}
	if unbalanced.Sum != 1 {
		t.Errorf("expected reported sum 1, got %d", unbalanced.Sum)
	}

	entries, _ := svc.ListEntries(context.Background(), "org-1")
	if len(entries) != 0 {
		t.Errorf("expected no entries after rejection, got %d", len(entries))
	}
}

func TestJournalAppend_RejectsEmptyPostings(t *testing.T) {
	svc := newJournalService(memory.NewStore())

	input := balancedInput("org-1", "dd-1")
	input.Postings = nil

	_, err := svc.Append(context.Background(), input)
	var unbalanced *domain.ErrUnbalancedJournal
	if !errors.As(err, &unbalanced) {
		t.Fatalf("expected ErrUnbalancedJournal for empty postings, got %v", err)
	}
}

func TestJournalAppend_RejectsMissingDedupeID(t *testing.T) {
	svc := newJournalService(memory.NewStore())

	input := balancedInput("org-1", "")
	_, err := svc.Append(context.Background(), input)
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if validation.Field != "dedupeId" {
		t.Errorf("expected field dedupeId, got %q", validation.Field)
	}
}

func TestJournalAppend_ConcurrentAppendsStayGapless(t *testing.T) {
	svc := newJournalService(memory.NewStore())
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := balancedInput("org-1", fmt.Sprintf("dd-%d", i))
			if _, err := svc.Append(ctx, input); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent append failed: %v", err)
	}

	entries, err := svc.ListEntries(ctx, "org-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}

	expectedPrev := chainhash.Genesis
	for i, e := range entries {
		if e.Seq != int64(i)+1 {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
		if e.PrevHash != expectedPrev {
			t.Errorf("entry %d: prev hash does not chain", i)
		}
		expectedPrev = e.Hash
	}
}
