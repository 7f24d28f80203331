// Package memory provides an in-memory implementation of the ledger
// storage contract. It backs tests and local development
// (LEDGER_BACKEND=memory) and mirrors the Postgres store's semantics:
// unique constraints surface as *domain.ErrConflict, reads return
// copies, writes are atomic under one lock.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/port"
)

// Store holds all ledger state in memory, guarded by a single mutex.
type Store struct {
	mu sync.Mutex

	journals   map[string][]domain.JournalEntry        // orgID → entries asc by seq
	dedupe     map[string]string                       // orgID|dedupeID → entry ID
	categories map[string][]domain.CategoryLedgerEntry // orgID|period|category → entries asc by seq
	accounts   map[string]*domain.DesignatedAccount    // orgID|type
	transfers  []domain.DesignatedTransfer
}

// NewStore creates an empty in-memory ledger store.
func NewStore() *Store {
	return &Store{
		journals:   make(map[string][]domain.JournalEntry),
		dedupe:     make(map[string]string),
		categories: make(map[string][]domain.CategoryLedgerEntry),
		accounts:   make(map[string]*domain.DesignatedAccount),
	}
}

func dedupeKey(orgID, dedupeID string) string {
	return orgID + "|" + dedupeID
}

func tupleKey(orgID, period string, category domain.TaxCategory) string {
	return fmt.Sprintf("%s|%s|%s", orgID, period, category)
}

func accountKey(orgID string, accountType domain.TaxCategory) string {
	return fmt.Sprintf("%s|%s", orgID, accountType)
}

func copyEntry(e *domain.JournalEntry) *domain.JournalEntry {
	cp := *e
	cp.Postings = append([]domain.Posting(nil), e.Postings...)
	return &cp
}

// --- JournalStore ---

func (s *Store) LastEntry(_ context.Context, orgID string) (*domain.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.journals[orgID]
	if len(chain) == 0 {
		return nil, nil
	}
	return copyEntry(&chain[len(chain)-1]), nil
}

func (s *Store) InsertEntry(_ context.Context, entry *domain.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dk := dedupeKey(entry.OrgID, entry.DedupeID)
	if _, exists := s.dedupe[dk]; exists {
		return &domain.ErrConflict{Key: dk, Err: fmt.Errorf("dedupe key already recorded")}
	}

	chain := s.journals[entry.OrgID]
	if want := int64(len(chain)) + 1; entry.Seq != want {
		return &domain.ErrConflict{
			Key: fmt.Sprintf("%s/seq=%d", entry.OrgID, entry.Seq),
			Err: fmt.Errorf("sequence slot taken, head is %d", len(chain)),
		}
	}

	s.journals[entry.OrgID] = append(chain, *copyEntry(entry))
	s.dedupe[dk] = entry.ID
	return nil
}

func (s *Store) EntryByDedupeID(_ context.Context, orgID, dedupeID string) (*domain.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.dedupe[dedupeKey(orgID, dedupeID)]
	if !ok {
		return nil, nil
	}
	for i := range s.journals[orgID] {
		if s.journals[orgID][i].ID == id {
			return copyEntry(&s.journals[orgID][i]), nil
		}
	}
	return nil, nil
}

func (s *Store) ListEntries(_ context.Context, orgID string) ([]domain.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.journals[orgID]
	out := make([]domain.JournalEntry, 0, len(chain))
	for i := range chain {
		out = append(out, *copyEntry(&chain[i]))
	}
	return out, nil
}

func (s *Store) AccountBalance(_ context.Context, orgID, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for i := range s.journals[orgID] {
		for _, p := range s.journals[orgID][i].Postings {
			if p.AccountID == accountID {
				sum += p.Amount
			}
		}
	}
	return sum, nil
}

func (s *Store) AccountInflow(_ context.Context, orgID, accountID string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for i := range s.journals[orgID] {
		e := &s.journals[orgID][i]
		if e.OccurredAt.Before(windowStart) {
			continue
		}
		for _, p := range e.Postings {
			if p.AccountID == accountID && p.Amount > 0 {
				sum += p.Amount
			}
		}
	}
	return sum, nil
}

// --- CategoryStore ---

func (s *Store) LastCategoryEntry(_ context.Context, orgID, period string, category domain.TaxCategory) (*domain.CategoryLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.categories[tupleKey(orgID, period, category)]
	if len(chain) == 0 {
		return nil, nil
	}
	cp := chain[len(chain)-1]
	return &cp, nil
}

func (s *Store) InsertCategoryEntry(_ context.Context, entry *domain.CategoryLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tupleKey(entry.OrgID, entry.Period, entry.Category)
	chain := s.categories[key]
	if want := int64(len(chain)) + 1; entry.Seq != want {
		return &domain.ErrConflict{
			Key: fmt.Sprintf("%s/seq=%d", key, entry.Seq),
			Err: fmt.Errorf("sequence slot taken, head is %d", len(chain)),
		}
	}
	s.categories[key] = append(chain, *entry)
	return nil
}

func (s *Store) ListCategoryEntries(_ context.Context, orgID, period string, category domain.TaxCategory) ([]domain.CategoryLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.categories[tupleKey(orgID, period, category)]
	out := make([]domain.CategoryLedgerEntry, len(chain))
	copy(out, chain)
	return out, nil
}

func (s *Store) CategoryTotals(_ context.Context, orgID, period string) (domain.CategoryBalances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(domain.CategoryBalances)
	prefix := orgID + "|" + period + "|"
	for key, chain := range s.categories {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		for i := range chain {
			switch chain[i].Direction {
			case domain.DirectionDebit:
				totals[chain[i].Category] -= chain[i].Amount
			case domain.DirectionCredit:
				totals[chain[i].Category] += chain[i].Amount
			}
		}
	}
	return totals, nil
}

func (s *Store) Periods(_ context.Context, orgID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var periods []string
	for key := range s.categories {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 || parts[0] != orgID {
			continue
		}
		if !seen[parts[1]] {
			seen[parts[1]] = true
			periods = append(periods, parts[1])
		}
	}
	return periods, nil
}

// --- DesignatedStore ---

func (s *Store) CreateAccount(_ context.Context, account *domain.DesignatedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey(account.OrgID, account.AccountType)
	if _, exists := s.accounts[key]; exists {
		return &domain.ErrConflict{Key: key, Err: fmt.Errorf("designated account already provisioned")}
	}
	cp := *account
	s.accounts[key] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, orgID string, accountType domain.TaxCategory) (*domain.DesignatedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountKey(orgID, accountType)]
	if !ok {
		return nil, &domain.ErrDesignatedAccountNotFound{OrgID: orgID, AccountType: accountType}
	}
	cp := *account
	return &cp, nil
}

func (s *Store) ApplyTransfer(_ context.Context, orgID string, accountType domain.TaxCategory, transfer *domain.DesignatedTransfer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountKey(orgID, accountType)]
	if !ok {
		return 0, &domain.ErrDesignatedAccountNotFound{OrgID: orgID, AccountType: accountType}
	}

	account.Balance += transfer.Amount
	account.UpdatedAt = transfer.CreatedAt
	transfer.AccountID = account.ID
	s.transfers = append(s.transfers, *transfer)
	return account.Balance, nil
}

func (s *Store) ListTransfers(_ context.Context, orgID, accountID string) ([]domain.DesignatedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.DesignatedTransfer
	for _, t := range s.transfers {
		if t.OrgID == orgID && t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Ping always succeeds for the in-memory backend.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Compile-time check: Store implements the full storage contract.
var _ port.LedgerStore = (*Store)(nil)
