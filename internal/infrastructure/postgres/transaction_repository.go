package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ofsync/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository. Rows are unique on
// (account_id, external_id), which makes re-imports idempotent.
type TransactionRepository struct {
	db *DB
}

var _ transaction.Repository = (*TransactionRepository)(nil)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, account_id, external_id, amount, currency, description, booking_date,
	credit_debit_type, created_at, updated_at`

func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, bool, error) {
	if err := params.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid transaction: %w", err)
	}

	query := `
		INSERT INTO transactions (account_id, external_id, amount, currency, description, booking_date, credit_debit_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, external_id) DO UPDATE
			SET amount = EXCLUDED.amount,
			    currency = EXCLUDED.currency,
			    description = EXCLUDED.description,
			    booking_date = COALESCE(EXCLUDED.booking_date, transactions.booking_date),
			    credit_debit_type = EXCLUDED.credit_debit_type,
			    updated_at = NOW()
		RETURNING ` + transactionColumns + `, (xmax = 0) AS inserted
	`

	var created bool
	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		params.AccountID, params.ExternalID, params.Amount, params.Currency, params.Description,
		nullTime(params.BookingDate), params.CreditDebitType,
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return tx, created, nil
}

func (r *TransactionRepository) GetByExternalID(ctx context.Context, accountID, externalID string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1 AND external_id = $2`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, accountID, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

func scanTransaction(row rowScanner, created ...*bool) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var bookingDate sql.NullTime

	dest := []any{
		&tx.ID, &tx.AccountID, &tx.ExternalID, &tx.Amount, &tx.Currency, &tx.Description, &bookingDate,
		&tx.CreditDebitType, &tx.CreatedAt, &tx.UpdatedAt,
	}
	for _, c := range created {
		dest = append(dest, c)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	tx.BookingDate = timePtr(bookingDate)
	return &tx, nil
}
