// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
)

// JournalStore persists hash-chained journal entries for the append
// engine and serves the verifier and balance reads.
//
// The storage collaborator must provide atomic multi-row writes, a
// uniqueness constraint on (org, dedupe key), and ordered retrieval by
// sequence; InsertEntry returns *domain.ErrConflict when a sequence
// slot or dedupe key is already taken.
type JournalStore interface {
	// LastEntry returns the highest-sequence entry for an org, or nil
	// when the chain is empty.
	LastEntry(ctx context.Context, orgID string) (*domain.JournalEntry, error)

	// InsertEntry writes the entry and its postings in one atomic unit.
	InsertEntry(ctx context.Context, entry *domain.JournalEntry) error

	// EntryByDedupeID returns the entry recorded under (org, dedupe
	// key), or nil when none exists.
	EntryByDedupeID(ctx context.Context, orgID, dedupeID string) (*domain.JournalEntry, error)

	// ListEntries returns all entries for an org ascending by sequence,
	// postings included.
	ListEntries(ctx context.Context, orgID string) ([]domain.JournalEntry, error)

	// AccountBalance sums posting amounts for one account.
	AccountBalance(ctx context.Context, orgID, accountID string) (int64, error)

	// AccountInflow sums positive posting amounts for one account over
	// entries occurring at or after windowStart.
	AccountInflow(ctx context.Context, orgID, accountID string, windowStart time.Time) (int64, error)
}

// CategoryStore persists category ledger entries, chained per
// (org, period, category) tuple.
type CategoryStore interface {
	LastCategoryEntry(ctx context.Context, orgID, period string, category domain.TaxCategory) (*domain.CategoryLedgerEntry, error)
	InsertCategoryEntry(ctx context.Context, entry *domain.CategoryLedgerEntry) error

	// ListCategoryEntries returns one tuple's chain ascending by sequence.
	ListCategoryEntries(ctx context.Context, orgID, period string, category domain.TaxCategory) ([]domain.CategoryLedgerEntry, error)

	// CategoryTotals returns the per-category net balance for a period
	// under the pinned sign convention (debit subtracts, credit adds).
	CategoryTotals(ctx context.Context, orgID, period string) (domain.CategoryBalances, error)

	// Periods lists the distinct period labels with entries for an org.
	Periods(ctx context.Context, orgID string) ([]string, error)
}

// DesignatedStore persists designated accounts and their transfers.
type DesignatedStore interface {
	// CreateAccount provisions a designated account with zero balance.
	// Returns *domain.ErrConflict if one already exists for the
	// (org, type) pair.
	CreateAccount(ctx context.Context, account *domain.DesignatedAccount) error

	GetAccount(ctx context.Context, orgID string, accountType domain.TaxCategory) (*domain.DesignatedAccount, error)

	// ApplyTransfer increments the account balance, touches its
	// timestamp and inserts the transfer row in one atomic unit,
	// serialized against concurrent transfers to the same account.
	// Fills transfer.AccountID and returns the balance after the
	// mutation.
	ApplyTransfer(ctx context.Context, orgID string, accountType domain.TaxCategory, transfer *domain.DesignatedTransfer) (int64, error)

	ListTransfers(ctx context.Context, orgID, accountID string) ([]domain.DesignatedTransfer, error)
}

// LedgerStore is the full storage contract the core requires.
type LedgerStore interface {
	JournalStore
	CategoryStore
	DesignatedStore

	// Ping reports backend health for readiness checks.
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// AuditPublisher receives one structured event per designated transfer.
// Publisher failure policy is fixed by the integrator wiring, not here.
type AuditPublisher interface {
	Publish(ctx context.Context, event *domain.AuditEvent) error
}
