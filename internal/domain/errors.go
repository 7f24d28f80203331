package domain

import "fmt"

// Error types for consistent error handling across the ledger core.

// ErrUnbalancedJournal indicates the posting set of an append request
// is empty or does not sum to zero. Input error; never retried and
// never persisted.
type ErrUnbalancedJournal struct {
	OrgID    string
	Sum      int64
	Postings int
}

func (e *ErrUnbalancedJournal) Error() string {
	if e.Postings == 0 {
		return fmt.Sprintf("unbalanced journal for org %s: postings list is empty", e.OrgID)
	}
	return fmt.Sprintf("unbalanced journal for org %s: %d postings sum to %d, want 0", e.OrgID, e.Postings, e.Sum)
}

// ErrDesignatedAccountNotFound indicates a transfer targeted an account
// that was never provisioned. Configuration error; no partial writes.
type ErrDesignatedAccountNotFound struct {
	OrgID       string
	AccountType TaxCategory
}

func (e *ErrDesignatedAccountNotFound) Error() string {
	return fmt.Sprintf("designated_account_not_found: org=%s type=%s", e.OrgID, e.AccountType)
}

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConflict indicates a write lost a race it can safely re-run:
// a sequence slot or chain head was taken by a concurrent writer.
// Retryable; the dedupe key bounds the effect to at-most-once.
type ErrConflict struct {
	Key string
	Err error
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("write conflict on %s: %v", e.Key, e.Err)
}

func (e *ErrConflict) Unwrap() error {
	return e.Err
}

// ErrStorage indicates a failure in the storage collaborator. Transient
// from the caller's perspective; safe to retry unchanged.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStorage) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
