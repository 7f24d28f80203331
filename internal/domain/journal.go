// Package domain holds the core types of the compliance ledger:
// journal entries, category ledger entries, designated accounts and
// the typed errors shared across services and adapters.
package domain

import "time"

// Posting is one signed leg of a journal entry. Amounts are in the
// smallest currency unit (cents), never floating point.
type Posting struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Memo      string `json:"memo,omitempty"`
}

// JournalEntry is one append-only, hash-chained record of a financial
// event. The postings of a single entry always sum to zero. Entries are
// never mutated or deleted; the full history is the source of truth.
type JournalEntry struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Seq         int64     `json:"seq"`
	Type        string    `json:"type"`
	EventID     string    `json:"event_id"`
	DedupeID    string    `json:"dedupe_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	Hash        string    `json:"hash"`
	PrevHash    string    `json:"prev_hash"` // empty for the first entry of an org
	Postings    []Posting `json:"postings"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppendJournalInput is the request to record one journal entry.
type AppendJournalInput struct {
	OrgID       string    `json:"org_id"`
	Type        string    `json:"type"`
	EventID     string    `json:"event_id"`
	DedupeID    string    `json:"dedupe_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	Postings    []Posting `json:"postings"`
}

// AppendJournalResult reports the persisted entry and whether this call
// created it. Created=false means the dedupe key was already used and
// the original entry is returned unchanged.
type AppendJournalResult struct {
	Entry   *JournalEntry `json:"entry"`
	Created bool          `json:"created"`
}

// PostingsBalance returns the signed sum of the posting amounts.
func PostingsBalance(postings []Posting) int64 {
	var sum int64
	for _, p := range postings {
		sum += p.Amount
	}
	return sum
}
