package domain

import "time"

// DesignatedAccount is a ring-fenced running balance reserved against
// one tax-obligation category. It is provisioned explicitly during
// onboarding and mutated in place by transfers; it is never deleted
// and never auto-created.
type DesignatedAccount struct {
	ID          string      `json:"id"`
	OrgID       string      `json:"org_id"`
	AccountType TaxCategory `json:"account_type"`
	Balance     int64       `json:"balance"` // signed, cents
	UpdatedAt   time.Time   `json:"updated_at"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DesignatedTransfer is the immutable audit record of one balance
// mutation. Exactly one is written per successful transfer, in the same
// atomic unit as the balance change.
type DesignatedTransfer struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"` // signed, cents
	Source    string    `json:"source"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TransferInput is the request to credit or debit a designated account.
//
// Note: the operation carries no idempotency key of its own; an
// upstream retry without a stable reference can double-apply. Callers
// owning retry loops must deduplicate before invoking.
type TransferInput struct {
	OrgID       string      `json:"org_id"`
	AccountType TaxCategory `json:"account_type"`
	Amount      int64       `json:"amount"`
	Source      string      `json:"source"`
	ActorID     string      `json:"actor_id"`
}

// TransferResult reports the balance after a successful transfer.
type TransferResult struct {
	Transfer   *DesignatedTransfer `json:"transfer"`
	NewBalance int64               `json:"new_balance"`
}

// AuditEvent is the structured event handed to the audit publisher
// after a designated transfer commits.
type AuditEvent struct {
	TransferID  string      `json:"transfer_id"`
	OrgID       string      `json:"org_id"`
	AccountID   string      `json:"account_id"`
	AccountType TaxCategory `json:"account_type"`
	Amount      int64       `json:"amount"`
	NewBalance  int64       `json:"new_balance"`
	Source      string      `json:"source"`
	ActorID     string      `json:"actor_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
