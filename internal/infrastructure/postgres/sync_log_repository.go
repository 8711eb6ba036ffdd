package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ofsync/internal/domain/synclog"
)

// SyncLogRepository implements synclog.Repository over account_sync_logs.
type SyncLogRepository struct {
	db *DB
}

var _ synclog.Repository = (*SyncLogRepository)(nil)

func NewSyncLogRepository(db *DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

func (r *SyncLogRepository) Create(ctx context.Context, log *synclog.SyncLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO account_sync_logs (id, account_id, sync_type, status, records_imported, error_message, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.ID, log.AccountID, string(log.SyncType), string(log.Status), log.RecordsImported, log.ErrorMessage, log.SyncedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}
	return nil
}

// Finish only touches logs still SYNCING, so finalizing twice changes nothing.
func (r *SyncLogRepository) Finish(ctx context.Context, id string, status synclog.Status, recordsImported int, errorMessage string, finishedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE account_sync_logs
		SET status = $2, records_imported = $3, error_message = $4, finished_at = $5
		WHERE id = $1 AND status = 'SYNCING'
	`, id, string(status), recordsImported, errorMessage, finishedAt)
	if err != nil {
		return false, fmt.Errorf("failed to finish sync log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SyncLogRepository) Latest(ctx context.Context, accountID string, syncType synclog.SyncType) (*synclog.SyncLog, error) {
	query := `
		SELECT id, account_id, sync_type, status, records_imported, error_message, synced_at, finished_at
		FROM account_sync_logs
		WHERE account_id = $1 AND sync_type = $2
		ORDER BY synced_at DESC
		LIMIT 1
	`

	var log synclog.SyncLog
	var syncTypeStr, status string
	var finishedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, accountID, string(syncType)).Scan(
		&log.ID, &log.AccountID, &syncTypeStr, &status, &log.RecordsImported, &log.ErrorMessage, &log.SyncedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync log: %w", err)
	}

	log.SyncType = synclog.SyncType(syncTypeStr)
	log.Status = synclog.Status(status)
	log.FinishedAt = timePtr(finishedAt)
	return &log, nil
}

func (r *SyncLogRepository) ListStaleAccountIDs(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT a.id
		FROM connected_accounts a
		WHERE a.enabled
		  AND NOT EXISTS (
			SELECT 1 FROM account_sync_logs l
			WHERE l.account_id = a.id AND l.status = 'SUCCESS' AND l.synced_at >= $1
		  )
		ORDER BY a.id
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
