// Package postgres implements the ledger storage contract on
// PostgreSQL via database/sql and lib/pq. Chain integrity is backed by
// unique constraints on (org, seq), (org, dedupe key) and the category
// tuple sequence; designated balances serialize through row locks.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/port"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("postgres")

// Store is the PostgreSQL-backed ledger store.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle. Call Migrate before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Ping reports backend health for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Postgres error codes this store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
)

// mapError converts driver failures into the domain's error types.
// Unique violations and serialization failures mean a concurrent writer
// won the race; everything else is a storage failure.
func mapError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeUniqueViolation, codeSerializationFailure:
			return &domain.ErrConflict{Key: key, Err: err}
		}
	}
	return &domain.ErrStorage{Op: op, Err: err}
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.ErrStorage{Op: "begin tx", Err: err}
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.ErrStorage{Op: "commit tx", Err: err}
	}
	return nil
}

// Compile-time check: Store implements the full storage contract.
var _ port.LedgerStore = (*Store)(nil)
