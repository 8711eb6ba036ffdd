package transaction

import (
	"context"
)

// Repository defines the interface for transaction data access
type Repository interface {
	// Upsert inserts or updates by (account, external id). created reports an insert.
	Upsert(ctx context.Context, params UpsertParams) (tx *Transaction, created bool, err error)

	// GetByExternalID returns nil, nil when absent
	GetByExternalID(ctx context.Context, accountID, externalID string) (*Transaction, error)

	CountByAccount(ctx context.Context, accountID string) (int, error)
}
