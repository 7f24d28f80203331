package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
)

// CreateAccount provisions a designated account. A second provision for
// the same (org, type) pair surfaces as ErrConflict.
func (s *Store) CreateAccount(ctx context.Context, account *domain.DesignatedAccount) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateAccount")
	defer span.End()

	key := fmt.Sprintf("%s/%s", account.OrgID, account.AccountType)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO designated_accounts (id, org_id, account_type, balance, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.OrgID, string(account.AccountType), account.Balance,
		account.UpdatedAt, account.CreatedAt,
	)
	return mapError("create designated account", key, err)
}

// GetAccount returns one designated account or
// ErrDesignatedAccountNotFound.
func (s *Store) GetAccount(ctx context.Context, orgID string, accountType domain.TaxCategory) (*domain.DesignatedAccount, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetAccount")
	defer span.End()

	var a domain.DesignatedAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, account_type, balance, updated_at, created_at
		FROM designated_accounts WHERE org_id = $1 AND account_type = $2`,
		orgID, string(accountType)).Scan(
		&a.ID, &a.OrgID, &a.AccountType, &a.Balance, &a.UpdatedAt, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrDesignatedAccountNotFound{OrgID: orgID, AccountType: accountType}
	}
	if err != nil {
		return nil, mapError("get designated account", orgID, err)
	}
	return &a, nil
}

// ApplyTransfer mutates the balance and records the transfer in one
// transaction. The SELECT ... FOR UPDATE row lock serializes concurrent
// transfers to the same account, so no update is lost.
func (s *Store) ApplyTransfer(ctx context.Context, orgID string, accountType domain.TaxCategory, transfer *domain.DesignatedTransfer) (int64, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ApplyTransfer")
	defer span.End()

	var newBalance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var accountID string
		var balance int64
		err := tx.QueryRowContext(ctx, `
			SELECT id, balance FROM designated_accounts
			WHERE org_id = $1 AND account_type = $2
			FOR UPDATE`, orgID, string(accountType)).Scan(&accountID, &balance)
		if err == sql.ErrNoRows {
			return &domain.ErrDesignatedAccountNotFound{OrgID: orgID, AccountType: accountType}
		}
		if err != nil {
			return mapError("lock designated account", orgID, err)
		}

		newBalance = balance + transfer.Amount
		transfer.AccountID = accountID

		_, err = tx.ExecContext(ctx, `
			UPDATE designated_accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
			newBalance, transfer.CreatedAt, accountID,
		)
		if err != nil {
			return mapError("update designated balance", accountID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO designated_transfers (id, org_id, account_id, amount, source, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			transfer.ID, transfer.OrgID, accountID, transfer.Amount,
			transfer.Source, transfer.ActorID, transfer.CreatedAt,
		)
		return mapError("insert designated transfer", transfer.ID, err)
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListTransfers returns the audit trail for one account, oldest first.
func (s *Store) ListTransfers(ctx context.Context, orgID, accountID string) ([]domain.DesignatedTransfer, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListTransfers")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, account_id, amount, source, actor_id, created_at
		FROM designated_transfers
		WHERE org_id = $1 AND account_id = $2
		ORDER BY created_at ASC, id ASC`, orgID, accountID)
	if err != nil {
		return nil, mapError("list transfers", accountID, err)
	}
	defer rows.Close()

	var transfers []domain.DesignatedTransfer
	for rows.Next() {
		var t domain.DesignatedTransfer
		err := rows.Scan(&t.ID, &t.OrgID, &t.AccountID, &t.Amount, &t.Source, &t.ActorID, &t.CreatedAt)
		if err != nil {
			return nil, mapError("scan transfer", accountID, err)
		}
		transfers = append(transfers, t)
	}
	return transfers, mapError("list transfers", accountID, rows.Err())
}
