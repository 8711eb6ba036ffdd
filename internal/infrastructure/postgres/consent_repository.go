package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ofsync/internal/domain/consent"
)

// TokenCipher encrypts OAuth tokens before they reach the database.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ConsentRepository implements consent.Repository. Access and refresh tokens are
// stored encrypted.
type ConsentRepository struct {
	db     *DB
	cipher TokenCipher
}

var _ consent.Repository = (*ConsentRepository)(nil)

func NewConsentRepository(db *DB, cipher TokenCipher) *ConsentRepository {
	return &ConsentRepository{db: db, cipher: cipher}
}

const consentColumns = `id, user_id, institution_code, scopes, access_token, refresh_token,
	expires_at, status, revoked_at, created_at, updated_at`

func (r *ConsentRepository) Create(ctx context.Context, params consent.GrantParams) (*consent.Consent, error) {
	access, refresh, err := r.encryptPair(params.AccessToken, params.RefreshToken)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO consents (user_id, institution_code, scopes, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + consentColumns

	c, err := r.scan(r.db.QueryRowContext(ctx, query,
		params.UserID, params.InstitutionCode, pq.Array(params.Scopes), access, refresh, params.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create consent: %w", err)
	}
	return c, nil
}

func (r *ConsentRepository) GetByID(ctx context.Context, id string) (*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE id = $1`

	c, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return c, nil
}

func (r *ConsentRepository) ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]*consent.Consent, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE status = 'ACTIVE' AND expires_at < $1
		ORDER BY expires_at
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring consents: %w", err)
	}
	defer rows.Close()

	var consents []*consent.Consent
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}

// UpdateTokens replaces both tokens and the expiry in a single statement.
func (r *ConsentRepository) UpdateTokens(ctx context.Context, id string, tokens consent.TokenSet) error {
	access, refresh, err := r.encryptPair(tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE consents
		SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`, id, access, refresh, tokens.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update consent tokens: %w", err)
	}
	return expectRow(result, consent.ErrNotFound)
}

func (r *ConsentRepository) UpdateStatus(ctx context.Context, id string, status consent.Status, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE consents
		SET status = $2,
		    revoked_at = CASE WHEN $2 = 'REVOKED' THEN COALESCE(revoked_at, $3) ELSE revoked_at END,
		    updated_at = NOW()
		WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update consent status: %w", err)
	}
	return expectRow(result, consent.ErrNotFound)
}

func (r *ConsentRepository) SetExpiresAt(ctx context.Context, id string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE consents SET expires_at = $2, updated_at = NOW() WHERE id = $1`,
		id, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update consent expiry: %w", err)
	}
	return expectRow(result, consent.ErrNotFound)
}

func (r *ConsentRepository) scan(row rowScanner) (*consent.Consent, error) {
	var c consent.Consent
	var status string
	var revokedAt sql.NullTime
	var access, refresh string

	if err := row.Scan(
		&c.ID, &c.UserID, &c.InstitutionCode, pq.Array(&c.Scopes), &access, &refresh,
		&c.ExpiresAt, &status, &revokedAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if c.AccessToken, err = r.cipher.Decrypt(access); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if c.RefreshToken, err = r.cipher.Decrypt(refresh); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	c.Status = consent.Status(status)
	c.RevokedAt = timePtr(revokedAt)
	return &c, nil
}

func (r *ConsentRepository) encryptPair(access, refresh string) (string, string, error) {
	encAccess, err := r.cipher.Encrypt(access)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := r.cipher.Encrypt(refresh)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return encAccess, encRefresh, nil
}

// expectRow returns notFound when an UPDATE matched nothing.
func expectRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
