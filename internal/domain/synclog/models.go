package synclog

import (
	"errors"
	"time"
)

type SyncType string

const (
	SyncTypeBalance      SyncType = "BALANCE"
	SyncTypeTransactions SyncType = "TRANSACTIONS"
)

func ParseSyncType(s string) (SyncType, error) {
	switch SyncType(s) {
	case SyncTypeBalance, SyncTypeTransactions:
		return SyncType(s), nil
	default:
		return "", ErrInvalidSyncType
	}
}

type Status string

const (
	StatusSyncing Status = "SYNCING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var (
	ErrNotFound        = errors.New("sync log not found")
	ErrInvalidSyncType = errors.New("sync type must be BALANCE or TRANSACTIONS")
)

// SyncLog records one sync attempt of one account. It starts SYNCING and is
// finalized exactly once.
type SyncLog struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"accountId"`
	SyncType        SyncType   `json:"syncType"`
	Status          Status     `json:"status"`
	RecordsImported int        `json:"recordsImported"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	SyncedAt        time.Time  `json:"syncedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// SyncStatusView is the read model served to callers asking how an account's
// last sync went.
type SyncStatusView struct {
	AccountID       string     `json:"accountId"`
	SyncStatus      Status     `json:"syncStatus"`
	SyncType        SyncType   `json:"syncType"`
	RecordsImported int        `json:"recordsImported"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	Success         bool       `json:"success"`
}
