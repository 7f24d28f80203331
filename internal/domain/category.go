package domain

import "time"

// TaxCategory enumerates the obligation categories tracked by the
// category ledger and designated accounts.
type TaxCategory string

const (
	CategoryPAYGW     TaxCategory = "PAYGW"
	CategoryGST       TaxCategory = "GST"
	CategorySuper     TaxCategory = "SUPER"
	CategoryIncomeTax TaxCategory = "INCOME_TAX"
	CategoryFBT       TaxCategory = "FBT"
)

// TaxCategories lists every category in a fixed order. Balance queries
// report a total for each of these even when no entries exist.
var TaxCategories = []TaxCategory{
	CategoryPAYGW,
	CategoryGST,
	CategorySuper,
	CategoryIncomeTax,
	CategoryFBT,
}

// Valid reports whether c is one of the known tax categories.
func (c TaxCategory) Valid() bool {
	for _, known := range TaxCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Direction marks a category ledger entry as a debit or a credit.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// CategoryLedgerEntry is one append-only record in the category ledger.
// Unlike the journal, an entry carries a single unsigned amount and a
// direction, and its hash chain is scoped to the
// (org, period, category) tuple rather than the whole organization.
type CategoryLedgerEntry struct {
	ID          string      `json:"id"`
	OrgID       string      `json:"org_id"`
	Period      string      `json:"period"`
	Category    TaxCategory `json:"category"`
	Direction   Direction   `json:"direction"`
	Amount      int64       `json:"amount"` // unsigned by invariant, cents
	EffectiveAt time.Time   `json:"effective_at"`
	Hash        string      `json:"hash"`
	PrevHash    string      `json:"prev_hash"`
	Seq         int64       `json:"seq"`
	CreatedAt   time.Time   `json:"created_at"`
}

// CategoryBalances maps each tax category to its net balance for a
// period. Sign convention is pinned: debits subtract, credits add.
type CategoryBalances map[TaxCategory]int64
