package synclog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxErrorMessage bounds what is persisted from provider error bodies.
const maxErrorMessage = 1000

// Recorder writes sync logs and serves the latest status per account.
type Recorder struct {
	repo   Repository
	cache  StatusCache
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. cache may be nil.
func NewRecorder(repo Repository, cache StatusCache, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// Begin inserts a SYNCING log for the account.
func (r *Recorder) Begin(ctx context.Context, accountID string, syncType SyncType) (*SyncLog, error) {
	log := &SyncLog{
		ID:        uuid.NewString(),
		AccountID: accountID,
		SyncType:  syncType,
		Status:    StatusSyncing,
		SyncedAt:  r.now(),
	}
	if err := r.repo.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to create sync log: %w", err)
	}
	// the cached view always tracks the newest log, SYNCING included
	r.cacheView(ctx, ToStatusView(accountID, log, 0, ""))
	return log, nil
}

func (r *Recorder) FinishSuccess(ctx context.Context, log *SyncLog, recordsImported int) error {
	return r.finish(ctx, log, StatusSuccess, recordsImported, "")
}

func (r *Recorder) FinishFailure(ctx context.Context, log *SyncLog, message string) error {
	message = truncateMessage(message, maxErrorMessage)
	return r.finish(ctx, log, StatusFailed, 0, message)
}

// finish is a no-op on a log that is already terminal.
func (r *Recorder) finish(ctx context.Context, log *SyncLog, status Status, records int, message string) error {
	if log.Status != StatusSyncing {
		return nil
	}

	finishedAt := r.now()
	updated, err := r.repo.Finish(ctx, log.ID, status, records, message, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish sync log: %w", err)
	}
	if !updated {
		r.logger.DebugContext(ctx, "sync log already finalized", "sync_log_id", log.ID)
		return nil
	}

	log.Status = status
	log.RecordsImported = records
	log.ErrorMessage = message
	log.FinishedAt = &finishedAt

	r.cacheView(ctx, ToStatusView(log.AccountID, log, records, message))
	return nil
}

func (r *Recorder) cacheView(ctx context.Context, view SyncStatusView) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, view); err != nil {
		r.logger.WarnContext(ctx, "failed to cache sync status", "account_id", view.AccountID, "error", err)
	}
}

// truncateMessage cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ToStatusView projects a log onto the read model. A nil log yields a view
// with only the account ID set.
func ToStatusView(accountID string, log *SyncLog, recordsImported int, errorMessage string) SyncStatusView {
	view := SyncStatusView{
		AccountID:       accountID,
		RecordsImported: recordsImported,
		ErrorMessage:    errorMessage,
	}
	if log == nil {
		return view
	}

	view.SyncStatus = log.Status
	view.SyncType = log.SyncType
	view.Success = log.Status == StatusSuccess

	lastSynced := log.SyncedAt
	if log.FinishedAt != nil {
		lastSynced = *log.FinishedAt
	}
	view.LastSyncedAt = &lastSynced
	return view
}

// LatestStatus returns the status of the account's most recent sync of the given type,
// from the cache when possible.
func (r *Recorder) LatestStatus(ctx context.Context, accountID string, syncType SyncType) (*SyncStatusView, error) {
	if r.cache != nil {
		view, err := r.cache.Get(ctx, accountID, syncType)
		if err != nil {
			r.logger.WarnContext(ctx, "sync status cache read failed", "account_id", accountID, "error", err)
		} else if view != nil {
			return view, nil
		}
	}

	log, err := r.repo.Latest(ctx, accountID, syncType)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync log: %w", err)
	}
	if log == nil {
		return nil, ErrNotFound
	}

	view := ToStatusView(accountID, log, log.RecordsImported, log.ErrorMessage)
	return &view, nil
}

// StaleAccounts lists enabled accounts without a successful sync within window.
func (r *Recorder) StaleAccounts(ctx context.Context, window time.Duration) ([]string, error) {
	ids, err := r.repo.ListStaleAccountIDs(ctx, r.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale accounts: %w", err)
	}
	return ids, nil
}
