// Package service provides the business logic layer (use cases) of the
// compliance ledger core: journal and category appends, balance
// aggregation, chain verification and designated account transfers.
package service

import (
	"context"
	"errors"
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

var journalTracer = otel.Tracer("service/journal")

// JournalService is the append engine for the hash-chained journal.
// Appends are idempotent per (org, dedupe key) and serialized per org.
type JournalService struct {
	store   port.JournalStore
	locks   *chainLocks
	retry   resilience.Config
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewJournalService creates the journal append engine.
func NewJournalService(store port.JournalStore, retry resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *JournalService {
	return &JournalService{
		store:   store,
		locks:   newChainLocks(),
		retry:   retry,
		metrics: metrics,
		logger:  logger,
	}
}

// Append records one balanced journal entry for an organization.
//
// The entry gets the next gapless sequence number and a hash chained to
// the previous entry. If the dedupe key was already used, the original
// entry is returned with Created=false and nothing is written, so a
// retry after a crash or timeout has at-most-one effect.
func (s *JournalService) Append(ctx context.Context, input *domain.AppendJournalInput) (*domain.AppendJournalResult, error) {
	ctx, span := journalTracer.Start(ctx, "JournalService.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", input.OrgID),
		attribute.String("journal.dedupe_id", input.DedupeID),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("journal_append", time.Since(start)) }()

	if err := validateAppendInput(input); err != nil {
		return nil, err
	}

	// Critical section: read last entry, chain, insert. One writer per
	// org inside this process; the storage unique constraints reject
	// forks raced in from elsewhere.
	unlock := s.locks.Lock("journal|" + input.OrgID)
	defer unlock()

	if existing, err := s.store.EntryByDedupeID(ctx, input.OrgID, input.DedupeID); err != nil {
		return nil, err
	} else if existing != nil {
		s.metrics.IncrIdempotentReplay("journal")
		s.logger.Debug("journal append replayed",
			zap.String("org_id", input.OrgID),
			zap.String("dedupe_id", input.DedupeID),
			zap.Int64("seq", existing.Seq),
		)
		return &domain.AppendJournalResult{Entry: existing, Created: false}, nil
	}

	var result *domain.AppendJournalResult
	err := resilience.RetryWithBackoff(ctx, s.retry, func() error {
		entry, err := s.buildEntry(ctx, input)
		if err != nil {
			return err
		}

		if err := s.store.InsertEntry(ctx, entry); err != nil {
			var conflict *domain.ErrConflict
			if errors.As(err, &conflict) {
				// A concurrent writer took the slot. If it used our
				// dedupe key we are done; otherwise re-read the head
				// and try the next sequence.
				existing, readErr := s.store.EntryByDedupeID(ctx, input.OrgID, input.DedupeID)
				if readErr != nil {
					return readErr
				}
				if existing != nil {
					s.metrics.IncrIdempotentReplay("journal")
					result = &domain.AppendJournalResult{Entry: existing, Created: false}
					return nil
				}
				s.metrics.IncrConflictRetry("journal")
			}
			return err
		}

		result = &domain.AppendJournalResult{Entry: entry, Created: true}
		return nil
	})
	if err != nil {
		s.logger.Error("journal append failed",
			zap.String("org_id", input.OrgID),
			zap.String("dedupe_id", input.DedupeID),
			zap.Error(err),
		)
		return nil, err
	}

	if result.Created {
		s.metrics.IncrAppend("journal")
		s.logger.Info("journal entry appended",
			zap.String("org_id", input.OrgID),
			zap.String("entry_id", result.Entry.ID),
			zap.Int64("seq", result.Entry.Seq),
			zap.Int("postings", len(result.Entry.Postings)),
		)
	}
	return result, nil
}

// buildEntry reads the chain head and assembles the next entry.
func (s *JournalService) buildEntry(ctx context.Context, input *domain.AppendJournalInput) (*domain.JournalEntry, error) {
	last, err := s.store.LastEntry(ctx, input.OrgID)
	if err != nil {
		return nil, err
	}

	nextSeq := int64(1)
	prevHash := chainhash.Genesis
	if last != nil {
		nextSeq = last.Seq + 1
		prevHash = last.Hash
	}

	entry := &domain.JournalEntry{
		ID:       uuid.New().String(),
		OrgID:    input.OrgID,
		Seq:      nextSeq,
		Type:     input.Type,
		EventID:  input.EventID,
		DedupeID: input.DedupeID,
		// Rounded to the microsecond before hashing: timestamptz keeps
		// microseconds, and the verifier recomputes from what the store
		// returns.
		OccurredAt:  input.OccurredAt.UTC().Round(time.Microsecond),
		Source:      input.Source,
		Description: input.Description,
		PrevHash:    prevHash,
		Postings:    append([]domain.Posting(nil), input.Postings...),
		CreatedAt:   time.Now().UTC(),
	}
	entry.Hash = chainhash.JournalEntryHash(prevHash, entry)
	return entry, nil
}

// ListEntries returns an organization's journal ascending by sequence,
// postings included. This is the feed the verifier and regulator
// exports consume.
func (s *JournalService) ListEntries(ctx context.Context, orgID string) ([]domain.JournalEntry, error) {
	ctx, span := journalTracer.Start(ctx, "JournalService.ListEntries")
	defer span.End()

	if orgID == "" {
		return nil, &domain.ErrValidation{Field: "orgId", Message: "required"}
	}
	return s.store.ListEntries(ctx, orgID)
}

func validateAppendInput(input *domain.AppendJournalInput) error {
	if input.OrgID == "" {
		return &domain.ErrValidation{Field: "orgId", Message: "required"}
	}
	if input.DedupeID == "" {
		return &domain.ErrValidation{Field: "dedupeId", Message: "required"}
	}
	if input.OccurredAt.IsZero() {
		return &domain.ErrValidation{Field: "occurredAt", Message: "required"}
	}
	if len(input.Postings) == 0 {
		return &domain.ErrUnbalancedJournal{OrgID: input.OrgID}
	}
	for _, p := range input.Postings {
		if p.AccountID == "" {
			return &domain.ErrValidation{Field: "postings.accountId", Message: "required"}
		}
	}
	if sum := domain.PostingsBalance(input.Postings); sum != 0 {
		return &domain.ErrUnbalancedJournal{OrgID: input.OrgID, Sum: sum, Postings: len(input.Postings)}
	}
	return nil
}
