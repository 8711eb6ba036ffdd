package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ofsync/internal/domain/account"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new PostgreSQL connected account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, consent_id, institution_code, external_account_id, account_type,
	masked_number, branch, holder_name, currency, balance, balance_updated_at, last_synced_at,
	sync_status, enabled, created_at, updated_at`

// Upsert inserts a discovered account or refreshes its descriptive fields.
// Rediscovery re-enables an account; sync state is left untouched.
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.ConnectedAccount, bool, error) {
	if err := params.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", account.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO connected_accounts (user_id, consent_id, institution_code, external_account_id,
			account_type, masked_number, branch, holder_name, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (consent_id, external_account_id) DO UPDATE
			SET account_type = EXCLUDED.account_type,
			    masked_number = EXCLUDED.masked_number,
			    branch = EXCLUDED.branch,
			    holder_name = EXCLUDED.holder_name,
			    currency = EXCLUDED.currency,
			    enabled = TRUE,
			    updated_at = NOW()
		RETURNING ` + accountColumns + `, (xmax = 0) AS inserted
	`

	var created bool
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		params.UserID, params.ConsentID, params.InstitutionCode, params.ExternalAccountID,
		params.AccountType, account.MaskNumber(params.Number), params.Branch, params.HolderName, params.Currency,
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert account: %w", err)
	}
	return acc, created, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.ConnectedAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM connected_accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) ListEnabled(ctx context.Context) ([]*account.ConnectedAccount, error) {
	return r.list(ctx, `
		SELECT `+accountColumns+`
		FROM connected_accounts
		WHERE enabled
		ORDER BY last_synced_at NULLS FIRST, id
	`)
}

func (r *AccountRepository) ListByConsent(ctx context.Context, consentID string) ([]*account.ConnectedAccount, error) {
	return r.list(ctx, `
		SELECT `+accountColumns+`
		FROM connected_accounts
		WHERE consent_id = $1
		ORDER BY created_at
	`, consentID)
}

func (r *AccountRepository) list(ctx context.Context, query string, args ...any) ([]*account.ConnectedAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.ConnectedAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) SetSyncStatus(ctx context.Context, id string, status account.SyncStatus) error {
	return r.exec(ctx, "failed to set sync status",
		`UPDATE connected_accounts SET sync_status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
}

func (r *AccountRepository) MarkBalanceSynced(ctx context.Context, id string, amount decimal.Decimal, currency string, at time.Time) error {
	return r.exec(ctx, "failed to store balance", `
		UPDATE connected_accounts
		SET balance = $2, currency = $3, balance_updated_at = $4, sync_status = 'SYNCED', updated_at = NOW()
		WHERE id = $1
	`, id, amount, currency, at)
}

// MarkTransactionsSynced never moves last_synced_at backwards.
func (r *AccountRepository) MarkTransactionsSynced(ctx context.Context, id string, windowEnd time.Time) error {
	return r.exec(ctx, "failed to advance sync window", `
		UPDATE connected_accounts
		SET last_synced_at = GREATEST(COALESCE(last_synced_at, $2), $2),
		    sync_status = 'SYNCED',
		    updated_at = NOW()
		WHERE id = $1
	`, id, windowEnd)
}

func (r *AccountRepository) MarkFailed(ctx context.Context, id string) error {
	return r.exec(ctx, "failed to mark account failed",
		`UPDATE connected_accounts SET sync_status = 'FAILED', updated_at = NOW() WHERE id = $1`,
		id)
}

func (r *AccountRepository) DisableByConsent(ctx context.Context, consentID string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE connected_accounts SET enabled = FALSE, updated_at = NOW() WHERE consent_id = $1 AND enabled`,
		consentID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to disable accounts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

func (r *AccountRepository) exec(ctx context.Context, msg, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return expectRow(result, account.ErrAccountNotFound)
}

// scanAccount reads accountColumns, plus the inserted flag when created is given.
func scanAccount(row rowScanner, created ...*bool) (*account.ConnectedAccount, error) {
	var acc account.ConnectedAccount
	var status string
	var balanceUpdatedAt, lastSyncedAt sql.NullTime

	dest := []any{
		&acc.ID, &acc.UserID, &acc.ConsentID, &acc.InstitutionCode, &acc.ExternalAccountID, &acc.AccountType,
		&acc.MaskedNumber, &acc.Branch, &acc.HolderName, &acc.Currency, &acc.Balance, &balanceUpdatedAt, &lastSyncedAt,
		&status, &acc.Enabled, &acc.CreatedAt, &acc.UpdatedAt,
	}
	for _, c := range created {
		dest = append(dest, c)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	acc.SyncStatus = account.SyncStatus(status)
	acc.BalanceUpdatedAt = timePtr(balanceUpdatedAt)
	acc.LastSyncedAt = timePtr(lastSyncedAt)
	return &acc, nil
}
