package domain

// ChainKind selects which ledger a chain selector refers to.
type ChainKind string

const (
	ChainJournal  ChainKind = "journal"
	ChainCategory ChainKind = "category"
)

// ChainSelector identifies one hash chain: an organization's journal
// chain, or a single (org, period, category) category ledger chain.
type ChainSelector struct {
	Kind     ChainKind   `json:"kind"`
	OrgID    string      `json:"org_id"`
	Period   string      `json:"period,omitempty"`   // category chains only
	Category TaxCategory `json:"category,omitempty"` // category chains only
}

// Verification failure reasons. The verifier never distinguishes more
// finely than these two; anything else is a storage error.
const (
	ReasonPrevHashMismatch = "prevHash mismatch"
	ReasonHashMismatch     = "hash mismatch"
)

// VerifyResult is the outcome of replaying one stored chain.
// FirstInvalidIndex is the zero-based position of the first entry that
// failed, valid only when OK is false.
//
// A verifier failure is an integrity incident: it is surfaced, never
// auto-corrected. Note the inherent limit of hash chains: an attacker
// who rewrites an entry and every subsequent hash consistently is not
// detectable from the chain alone.
type VerifyResult struct {
	Selector          ChainSelector `json:"selector"`
	OK                bool          `json:"ok"`
	Entries           int           `json:"entries"`
	FirstInvalidIndex int           `json:"first_invalid_index,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}
