package synclog

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, log *SyncLog) error

	// Finish finalizes a SYNCING log. It returns false without error when the log
	// was already finalized.
	Finish(ctx context.Context, id string, status Status, recordsImported int, errorMessage string, finishedAt time.Time) (bool, error)

	// Latest returns the most recent log for the account and type, or nil, nil
	Latest(ctx context.Context, accountID string, syncType SyncType) (*SyncLog, error)

	// ListStaleAccountIDs returns enabled accounts without a SUCCESS log since the cutoff
	ListStaleAccountIDs(ctx context.Context, since time.Time) ([]string, error)
}

// StatusCache holds the latest SyncStatusView per account and type.
type StatusCache interface {
	Get(ctx context.Context, accountID string, syncType SyncType) (*SyncStatusView, error)
	Set(ctx context.Context, view SyncStatusView) error
}
