package chainhash_test

import (
	"testing"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/infra/chainhash"
)

func TestSum_Deterministic(t *testing.T) {
	a := chainhash.Sum(chainhash.Genesis, "org-1", "ev-1", "100")
	b := chainhash.Sum(chainhash.Genesis, "org-1", "ev-1", "100")
	if a != b {
		t.Errorf("same input produced different digests: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestSum_FramingPreventsFieldConfusion(t *testing.T) {
	// Without length framing these two field lists would serialize to
	// the same byte stream.
	a := chainhash.Sum(chainhash.Genesis, "ab", "c")
	b := chainhash.Sum(chainhash.Genesis, "a", "bc")
	if a == b {
		t.Error("expected different digests for differently split fields")
	}
}

func TestSum_PrevHashChangesDigest(t *testing.T) {
	a := chainhash.Sum(chainhash.Genesis, "org-1")
	b := chainhash.Sum("deadbeef", "org-1")
	if a == b {
		t.Error("expected prev hash to affect the digest")
	}
}

func TestJournalEntryHash_SensitiveToEveryField(t *testing.T) {
	base := func() *domain.JournalEntry {
		return &domain.JournalEntry{
			OrgID:      "org-1",
			EventID:    "ev-1",
			DedupeID:   "dd-1",
			Type:       "payroll_run",
			OccurredAt: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
			Source:     "payroll",
			Postings: []domain.Posting{
				{AccountID: "acct-A", Amount: 500},
				{AccountID: "acct-B", Amount: -500},
			},
		}
	}

	original := chainhash.JournalEntryHash(chainhash.Genesis, base())

	mutations := map[string]func(*domain.JournalEntry){
		"org":            func(e *domain.JournalEntry) { e.OrgID = "org-2" },
		"event":          func(e *domain.JournalEntry) { e.EventID = "ev-2" },
		"dedupe":         func(e *domain.JournalEntry) { e.DedupeID = "dd-2" },
		"type":           func(e *domain.JournalEntry) { e.Type = "adjustment" },
		"occurred_at":    func(e *domain.JournalEntry) { e.OccurredAt = e.OccurredAt.Add(time.Second) },
		"source":         func(e *domain.JournalEntry) { e.Source = "manual" },
		"posting amount": func(e *domain.JournalEntry) { e.Postings[0].Amount = 501 },
		"posting account": func(e *domain.JournalEntry) {
			e.Postings[1].AccountID = "acct-C"
		},
		"posting order": func(e *domain.JournalEntry) {
			e.Postings[0], e.Postings[1] = e.Postings[1], e.Postings[0]
		},
	}

	for name, mutate := range mutations {
		e := base()
		mutate(e)
		if chainhash.JournalEntryHash(chainhash.Genesis, e) == original {
			t.Errorf("mutation %q did not change the digest", name)
		}
	}
}

func TestCategoryEntryHash_SensitiveToDirectionAndAmount(t *testing.T) {
	base := domain.CategoryLedgerEntry{
		OrgID:       "org-1",
		Period:      "2025-Q1",
		Category:    domain.CategoryPAYGW,
		Direction:   domain.DirectionDebit,
		Amount:      10000,
		EffectiveAt: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	original := chainhash.CategoryEntryHash(chainhash.Genesis, &base)

	flipped := base
	flipped.Direction = domain.DirectionCredit
	if chainhash.CategoryEntryHash(chainhash.Genesis, &flipped) == original {
		t.Error("expected direction flip to change the digest")
	}

	bumped := base
	bumped.Amount = 10001
	if chainhash.CategoryEntryHash(chainhash.Genesis, &bumped) == original {
		t.Error("expected amount change to change the digest")
	}
}
