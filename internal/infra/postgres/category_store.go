package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
)

const categoryColumns = `id, org_id, period, category, direction, amount, effective_at, hash, prev_hash, seq, created_at`

// LastCategoryEntry returns the chain head for one tuple, or nil when
// the tuple has no entries yet.
func (s *Store) LastCategoryEntry(ctx context.Context, orgID, period string, category domain.TaxCategory) (*domain.CategoryLedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LastCategoryEntry")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s FROM category_entries
		WHERE org_id = $1 AND period = $2 AND category = $3
		ORDER BY seq DESC LIMIT 1`, categoryColumns)

	var e domain.CategoryLedgerEntry
	err := s.db.QueryRowContext(ctx, query, orgID, period, string(category)).Scan(
		&e.ID, &e.OrgID, &e.Period, &e.Category, &e.Direction, &e.Amount,
		&e.EffectiveAt, &e.Hash, &e.PrevHash, &e.Seq, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("last category entry", orgID, err)
	}
	return &e, nil
}

// InsertCategoryEntry writes one entry; a taken tuple sequence slot
// surfaces as ErrConflict.
func (s *Store) InsertCategoryEntry(ctx context.Context, entry *domain.CategoryLedgerEntry) error {
	ctx, span := tracer.Start(ctx, "Postgres.InsertCategoryEntry")
	defer span.End()

	key := fmt.Sprintf("%s/%s/%s/seq=%d", entry.OrgID, entry.Period, entry.Category, entry.Seq)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO category_entries (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, categoryColumns),
		entry.ID, entry.OrgID, entry.Period, string(entry.Category), string(entry.Direction),
		entry.Amount, entry.EffectiveAt, entry.Hash, entry.PrevHash, entry.Seq, entry.CreatedAt,
	)
	return mapError("insert category entry", key, err)
}

// ListCategoryEntries returns one tuple's chain ascending by sequence.
func (s *Store) ListCategoryEntries(ctx context.Context, orgID, period string, category domain.TaxCategory) ([]domain.CategoryLedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListCategoryEntries")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s FROM category_entries
		WHERE org_id = $1 AND period = $2 AND category = $3
		ORDER BY seq ASC`, categoryColumns)

	rows, err := s.db.QueryContext(ctx, query, orgID, period, string(category))
	if err != nil {
		return nil, mapError("list category entries", orgID, err)
	}
	defer rows.Close()

	var entries []domain.CategoryLedgerEntry
	for rows.Next() {
		var e domain.CategoryLedgerEntry
		err := rows.Scan(
			&e.ID, &e.OrgID, &e.Period, &e.Category, &e.Direction, &e.Amount,
			&e.EffectiveAt, &e.Hash, &e.PrevHash, &e.Seq, &e.CreatedAt,
		)
		if err != nil {
			return nil, mapError("scan category entry", orgID, err)
		}
		entries = append(entries, e)
	}
	return entries, mapError("list category entries", orgID, rows.Err())
}

// CategoryTotals computes per-category net balances for one period
// under the pinned sign convention: debit subtracts, credit adds.
func (s *Store) CategoryTotals(ctx context.Context, orgID, period string) (domain.CategoryBalances, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CategoryTotals")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT category,
		       COALESCE(SUM(CASE WHEN direction = 'debit' THEN -amount ELSE amount END), 0)
		FROM category_entries
		WHERE org_id = $1 AND period = $2
		GROUP BY category`, orgID, period)
	if err != nil {
		return nil, mapError("category totals", orgID, err)
	}
	defer rows.Close()

	totals := make(domain.CategoryBalances)
	for rows.Next() {
		var category string
		var sum int64
		if err := rows.Scan(&category, &sum); err != nil {
			return nil, mapError("scan category total", orgID, err)
		}
		totals[domain.TaxCategory(category)] = sum
	}
	return totals, mapError("category totals", orgID, rows.Err())
}

// Periods lists the distinct period labels with entries for an org.
func (s *Store) Periods(ctx context.Context, orgID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Postgres.Periods")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT period FROM category_entries WHERE org_id = $1 ORDER BY period`, orgID)
	if err != nil {
		return nil, mapError("periods", orgID, err)
	}
	defer rows.Close()

	var periods []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, mapError("scan period", orgID, err)
		}
		periods = append(periods, p)
	}
	return periods, mapError("periods", orgID, rows.Err())
}
