package account

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for connected account data access.
// This interface is defined in the domain layer, but implemented in the infrastructure layer.
type Repository interface {
	// Upsert creates or updates an account keyed by (consent, external account id).
	// created is true when a new row was inserted.
	Upsert(ctx context.Context, params UpsertParams) (acc *ConnectedAccount, created bool, err error)

	// GetByID returns nil, nil when the account does not exist
	GetByID(ctx context.Context, id string) (*ConnectedAccount, error)

	// ListEnabled returns every enabled account, oldest sync first
	ListEnabled(ctx context.Context) ([]*ConnectedAccount, error)

	ListByConsent(ctx context.Context, consentID string) ([]*ConnectedAccount, error)

	SetSyncStatus(ctx context.Context, id string, status SyncStatus) error

	// MarkBalanceSynced stores a fetched balance and sets the status to SYNCED
	MarkBalanceSynced(ctx context.Context, id string, amount decimal.Decimal, currency string, at time.Time) error

	// MarkTransactionsSynced advances last_synced_at to windowEnd and sets the status to SYNCED
	MarkTransactionsSynced(ctx context.Context, id string, windowEnd time.Time) error

	MarkFailed(ctx context.Context, id string) error

	// DisableByConsent soft-disables every account of a consent and returns how many changed
	DisableByConsent(ctx context.Context, consentID string) (int, error)
}
