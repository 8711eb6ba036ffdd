// Package openfinance drives the recurring synchronization of connected accounts
// with the Open Finance provider.
package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/consent"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/domain/transaction"
	ofclient "ofsync/internal/infrastructure/openfinance"
	"ofsync/internal/shared/metrics"
)

const (
	DutyBalances     = "balances"
	DutyTransactions = "transactions"
	DutyTokenRefresh = "token_refresh"

	DefaultWorkers      = 4
	DefaultLookbackDays = 90
)

// ConsentManager is the slice of consent.Service the orchestrator depends on.
type ConsentManager interface {
	Get(ctx context.Context, consentID string) (*consent.Consent, error)
	AccessToken(ctx context.Context, consentID, scope string) (string, error)
	FlagForRefresh(ctx context.Context, consentID string) error
	RefreshExpiringTokens(ctx context.Context) (consent.RefreshResult, error)
}

// SyncRecorder persists the outcome of every per-account sync.
type SyncRecorder interface {
	Begin(ctx context.Context, accountID string, syncType synclog.SyncType) (*synclog.SyncLog, error)
	FinishSuccess(ctx context.Context, log *synclog.SyncLog, recordsImported int) error
	FinishFailure(ctx context.Context, log *synclog.SyncLog, message string) error
}

type Config struct {
	// Enabled is the global kill-switch. When false every duty is a logged no-op.
	Enabled      bool
	Workers      int
	LookbackDays int
	PageSize     int
}

// DutyResult summarizes one run of a duty.
type DutyResult struct {
	Duty            string                 `json:"duty"`
	Skipped         bool                   `json:"skipped"`
	Accounts        int                    `json:"accounts"`
	Succeeded       int                    `json:"succeeded"`
	Failed          int                    `json:"failed"`
	RecordsImported int                    `json:"recordsImported"`
	Errors          []string               `json:"errors,omitempty"`
	Tokens          *consent.RefreshResult `json:"tokens,omitempty"`
	Duration        time.Duration          `json:"duration"`
}

// Orchestrator runs the sync duties. Failures are isolated per account: one
// account failing never stops the others, and nothing escapes a duty.
type Orchestrator struct {
	cfg          Config
	gateway      ofclient.AccountInformationGateway
	consents     ConsentManager
	accounts     account.Repository
	transactions transaction.Repository
	recorder     SyncRecorder
	publisher    EventPublisher
	locks        *accountLocks
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an orchestrator. publisher may be nil.
func New(
	cfg Config,
	gateway ofclient.AccountInformationGateway,
	consents ConsentManager,
	accounts account.Repository,
	transactions transaction.Repository,
	recorder SyncRecorder,
	publisher EventPublisher,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultLookbackDays
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = ofclient.DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:          cfg,
		gateway:      gateway,
		consents:     consents,
		accounts:     accounts,
		transactions: transactions,
		recorder:     recorder,
		publisher:    publisher,
		locks:        newAccountLocks(),
		logger:       logger,
		now:          time.Now,
	}
}

// RefreshExpiringTokens delegates to the consent manager under the kill-switch.
func (o *Orchestrator) RefreshExpiringTokens(ctx context.Context) (*DutyResult, error) {
	return o.runDuty(ctx, DutyTokenRefresh, func(ctx context.Context, res *DutyResult) error {
		tokens, err := o.consents.RefreshExpiringTokens(ctx)
		if err != nil {
			return err
		}
		res.Tokens = &tokens
		res.Accounts = tokens.Eligible
		res.Succeeded = tokens.Refreshed
		res.Failed = tokens.Failed + tokens.Expired
		res.Errors = tokens.Errors
		return nil
	})
}

// runDuty applies the kill-switch, recovers panics and records duration.
func (o *Orchestrator) runDuty(ctx context.Context, duty string, fn func(ctx context.Context, res *DutyResult) error) (res *DutyResult, err error) {
	res = &DutyResult{Duty: duty}

	if !o.cfg.Enabled {
		o.logger.DebugContext(ctx, "sync disabled, skipping duty", "duty", duty)
		res.Skipped = true
		return res, nil
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "duty panicked",
				"duty", duty, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("duty %s panicked: %v", duty, r)
		}
		res.Duration = time.Since(start)
		metrics.DutyDuration.WithLabelValues(duty).Observe(res.Duration.Seconds())
	}()

	o.logger.InfoContext(ctx, "duty started", "duty", duty)

	if err := fn(ctx, res); err != nil {
		o.logger.ErrorContext(ctx, "duty failed", "duty", duty, "error", err)
		return res, fmt.Errorf("%s duty failed: %w", duty, err)
	}

	o.logger.InfoContext(ctx, "duty finished",
		"duty", duty,
		"accounts", res.Accounts,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"records", res.RecordsImported,
	)
	return res, nil
}

// syncFunc does the provider work for one account and returns the number of records written.
type syncFunc func(ctx context.Context, acc *account.ConnectedAccount) (int, error)

// forEachAccount fans fn out over every enabled account with at most Workers in flight.
func (o *Orchestrator) forEachAccount(ctx context.Context, res *DutyResult, syncType synclog.SyncType, fn syncFunc) error {
	accounts, err := o.accounts.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	res.Accounts = len(accounts)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)

	for _, acc := range accounts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			records, err := o.syncAccount(ctx, acc, syncType, fn)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", acc.ID, err))
				return nil
			}
			res.Succeeded++
			res.RecordsImported += records
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// syncAccount wraps fn with the sync log and account status bookkeeping.
func (o *Orchestrator) syncAccount(ctx context.Context, acc *account.ConnectedAccount, syncType synclog.SyncType, fn syncFunc) (int, error) {
	logger := o.logger.With("account_id", acc.ID, "sync_type", syncType)

	entry, err := o.recorder.Begin(ctx, acc.ID, syncType)
	if err != nil {
		logger.ErrorContext(ctx, "failed to begin sync log", "error", err)
		metrics.SyncAttempts.WithLabelValues(string(syncType), string(synclog.StatusFailed)).Inc()
		return 0, err
	}

	if err := o.locks.with(acc.ID, func() error {
		return o.accounts.SetSyncStatus(ctx, acc.ID, account.SyncStatusSyncing)
	}); err != nil {
		logger.WarnContext(ctx, "failed to mark account syncing", "error", err)
	}

	records, err := o.safely(ctx, acc, fn)
	if err != nil {
		if ferr := o.recorder.FinishFailure(ctx, entry, err.Error()); ferr != nil {
			logger.ErrorContext(ctx, "failed to finish sync log", "error", ferr)
		}
		if merr := o.locks.with(acc.ID, func() error {
			return o.accounts.MarkFailed(ctx, acc.ID)
		}); merr != nil {
			logger.ErrorContext(ctx, "failed to mark account failed", "error", merr)
		}
		if errors.Is(err, ofclient.ErrUnauthorized) {
			if ferr := o.consents.FlagForRefresh(ctx, acc.ConsentID); ferr != nil {
				logger.WarnContext(ctx, "failed to flag consent for refresh", "consent_id", acc.ConsentID, "error", ferr)
			}
		}

		metrics.SyncAttempts.WithLabelValues(string(syncType), string(synclog.StatusFailed)).Inc()
		logger.ErrorContext(ctx, "account sync failed", "error", err)
		return 0, err
	}

	if err := o.recorder.FinishSuccess(ctx, entry, records); err != nil {
		logger.ErrorContext(ctx, "failed to finish sync log", "error", err)
	}
	metrics.SyncAttempts.WithLabelValues(string(syncType), string(synclog.StatusSuccess)).Inc()
	metrics.RecordsImported.WithLabelValues(string(syncType)).Add(float64(records))

	o.publish(ctx, acc, syncType, records)

	logger.DebugContext(ctx, "account synced", "records", records)
	return records, nil
}

// safely turns a panic inside fn into an error for this account only.
func (o *Orchestrator) safely(ctx context.Context, acc *account.ConnectedAccount, fn syncFunc) (records int, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "account sync panicked",
				"account_id", acc.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, acc)
}
