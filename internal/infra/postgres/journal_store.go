package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
)

const journalColumns = `id, org_id, seq, entry_type, event_id, dedupe_id, occurred_at, source, description, hash, prev_hash, created_at`

func scanJournalEntry(row *sql.Row) (*domain.JournalEntry, error) {
	var e domain.JournalEntry
	err := row.Scan(
		&e.ID, &e.OrgID, &e.Seq, &e.Type, &e.EventID, &e.DedupeID,
		&e.OccurredAt, &e.Source, &e.Description, &e.Hash, &e.PrevHash, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LastEntry returns the highest-sequence entry for an org, or nil when
// the chain is empty.
func (s *Store) LastEntry(ctx context.Context, orgID string) (*domain.JournalEntry, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LastEntry")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM journal_entries WHERE org_id = $1 ORDER BY seq DESC LIMIT 1`, journalColumns)
	entry, err := scanJournalEntry(s.db.QueryRowContext(ctx, query, orgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("last entry", orgID, err)
	}

	if err := s.loadPostings(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// InsertEntry writes the entry and its postings in one transaction.
// A taken (org, dedupe) or (org, seq) slot surfaces as ErrConflict.
func (s *Store) InsertEntry(ctx context.Context, entry *domain.JournalEntry) error {
	ctx, span := tracer.Start(ctx, "Postgres.InsertEntry")
	defer span.End()

	key := fmt.Sprintf("%s/%s", entry.OrgID, entry.DedupeID)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO journal_entries (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, journalColumns),
			entry.ID, entry.OrgID, entry.Seq, entry.Type, entry.EventID, entry.DedupeID,
			entry.OccurredAt, entry.Source, entry.Description, entry.Hash, entry.PrevHash, entry.CreatedAt,
		)
		if err != nil {
			return mapError("insert journal entry", key, err)
		}

		for pos, p := range entry.Postings {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO journal_postings (entry_id, pos, account_id, amount, memo)
				VALUES ($1, $2, $3, $4, $5)`,
				entry.ID, pos, p.AccountID, p.Amount, p.Memo,
			)
			if err != nil {
				return mapError("insert posting", key, err)
			}
		}
		return nil
	})
}

// EntryByDedupeID returns the entry recorded under (org, dedupe key),
// or nil when none exists.
func (s *Store) EntryByDedupeID(ctx context.Context, orgID, dedupeID string) (*domain.JournalEntry, error) {
	ctx, span := tracer.Start(ctx, "Postgres.EntryByDedupeID")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM journal_entries WHERE org_id = $1 AND dedupe_id = $2`, journalColumns)
	entry, err := scanJournalEntry(s.db.QueryRowContext(ctx, query, orgID, dedupeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("entry by dedupe id", orgID, err)
	}

	if err := s.loadPostings(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns all entries for an org ascending by sequence,
// postings included.
func (s *Store) ListEntries(ctx context.Context, orgID string) ([]domain.JournalEntry, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListEntries")
	defer span.End()

	query := fmt.Sprintf(`SELECT %s FROM journal_entries WHERE org_id = $1 ORDER BY seq ASC`, journalColumns)
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, mapError("list entries", orgID, err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	index := make(map[string]int)
	for rows.Next() {
		var e domain.JournalEntry
		err := rows.Scan(
			&e.ID, &e.OrgID, &e.Seq, &e.Type, &e.EventID, &e.DedupeID,
			&e.OccurredAt, &e.Source, &e.Description, &e.Hash, &e.PrevHash, &e.CreatedAt,
		)
		if err != nil {
			return nil, mapError("scan entry", orgID, err)
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list entries", orgID, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT p.entry_id, p.account_id, p.amount, p.memo
		FROM journal_postings p
		JOIN journal_entries e ON e.id = p.entry_id
		WHERE e.org_id = $1
		ORDER BY e.seq ASC, p.pos ASC`, orgID)
	if err != nil {
		return nil, mapError("list postings", orgID, err)
	}
	defer prows.Close()

	for prows.Next() {
		var entryID string
		var p domain.Posting
		if err := prows.Scan(&entryID, &p.AccountID, &p.Amount, &p.Memo); err != nil {
			return nil, mapError("scan posting", orgID, err)
		}
		if i, ok := index[entryID]; ok {
			entries[i].Postings = append(entries[i].Postings, p)
		}
	}
	if err := prows.Err(); err != nil {
		return nil, mapError("list postings", orgID, err)
	}
	return entries, nil
}

// loadPostings fills one entry's postings in stored order.
func (s *Store) loadPostings(ctx context.Context, entry *domain.JournalEntry) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, amount, memo
		FROM journal_postings WHERE entry_id = $1 ORDER BY pos ASC`, entry.ID)
	if err != nil {
		return mapError("load postings", entry.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Posting
		if err := rows.Scan(&p.AccountID, &p.Amount, &p.Memo); err != nil {
			return mapError("scan posting", entry.ID, err)
		}
		entry.Postings = append(entry.Postings, p)
	}
	return mapError("load postings", entry.ID, rows.Err())
}

// AccountBalance sums posting amounts for one account.
func (s *Store) AccountBalance(ctx context.Context, orgID, accountID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.AccountBalance")
	defer span.End()

	var sum int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM journal_postings p
		JOIN journal_entries e ON e.id = p.entry_id
		WHERE e.org_id = $1 AND p.account_id = $2`, orgID, accountID).Scan(&sum)
	if err != nil {
		return 0, mapError("account balance", accountID, err)
	}
	return sum, nil
}

// AccountInflow sums positive posting amounts for one account over
// entries occurring at or after windowStart.
func (s *Store) AccountInflow(ctx context.Context, orgID, accountID string, windowStart time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.AccountInflow")
	defer span.End()

	var sum int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM journal_postings p
		JOIN journal_entries e ON e.id = p.entry_id
		WHERE e.org_id = $1 AND p.account_id = $2 AND p.amount > 0 AND e.occurred_at >= $3`,
		orgID, accountID, windowStart).Scan(&sum)
	if err != nil {
		return 0, mapError("account inflow", accountID, err)
	}
	return sum, nil
}
