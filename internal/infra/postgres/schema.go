package postgres

import (
	"context"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
)

// Migrations returns the schema migration statements in order.
// Each string is a single SQL statement.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id          UUID PRIMARY KEY,
			org_id      TEXT NOT NULL,
			seq         BIGINT NOT NULL,
			entry_type  TEXT NOT NULL,
			event_id    TEXT NOT NULL,
			dedupe_id   TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			source      TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			hash        TEXT NOT NULL,
			prev_hash   TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (org_id, dedupe_id),
			UNIQUE (org_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS journal_postings (
			id         BIGSERIAL PRIMARY KEY,
			entry_id   UUID NOT NULL REFERENCES journal_entries(id),
			pos        INT NOT NULL,
			account_id TEXT NOT NULL,
			amount     BIGINT NOT NULL,
			memo       TEXT NOT NULL DEFAULT '',
			UNIQUE (entry_id, pos)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_postings_account ON journal_postings(account_id)`,

		`CREATE TABLE IF NOT EXISTS category_entries (
			id           UUID PRIMARY KEY,
			org_id       TEXT NOT NULL,
			period       TEXT NOT NULL,
			category     TEXT NOT NULL,
			direction    TEXT NOT NULL,
			amount       BIGINT NOT NULL,
			effective_at TIMESTAMPTZ NOT NULL,
			hash         TEXT NOT NULL,
			prev_hash    TEXT NOT NULL DEFAULT '',
			seq          BIGINT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (org_id, period, category, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_category_period ON category_entries(org_id, period)`,

		`CREATE TABLE IF NOT EXISTS designated_accounts (
			id           UUID PRIMARY KEY,
			org_id       TEXT NOT NULL,
			account_type TEXT NOT NULL,
			balance      BIGINT NOT NULL DEFAULT 0,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (org_id, account_type)
		)`,

		`CREATE TABLE IF NOT EXISTS designated_transfers (
			id         UUID PRIMARY KEY,
			org_id     TEXT NOT NULL,
			account_id UUID NOT NULL REFERENCES designated_accounts(id),
			amount     BIGINT NOT NULL,
			source     TEXT NOT NULL,
			actor_id   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_account ON designated_transfers(org_id, account_id)`,
	}
}

// Migrate applies all migrations. Statements are idempotent, so running
// at every startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &domain.ErrStorage{Op: "migrate", Err: err}
		}
	}
	return nil
}
