package scheduler

import (
	"context"
	"fmt"
	"time"

	"ofsync/internal/domain/openfinance"
)

// Job names
const (
	JobBalances     = "balance-sync"
	JobTransactions = "transaction-sync"
	JobTokenRefresh = "token-refresh"
)

// Duties is implemented by *openfinance.Orchestrator.
type Duties interface {
	SyncAllBalances(ctx context.Context) (*openfinance.DutyResult, error)
	SyncAllTransactions(ctx context.Context) (*openfinance.DutyResult, error)
	RefreshExpiringTokens(ctx context.Context) (*openfinance.DutyResult, error)
}

type JobsConfig struct {
	BalanceInterval      time.Duration
	BalanceInitialDelay  time.Duration
	TransactionSchedule  []string
	TokenRefreshInterval time.Duration
	Location             *time.Location
}

// RegisterSyncJobs registers the three sync duties.
func RegisterSyncJobs(s *Scheduler, duties Duties, cfg JobsConfig) error {
	daily, err := NewDaily(cfg.TransactionSchedule, cfg.Location)
	if err != nil {
		return fmt.Errorf("invalid transaction schedule: %w", err)
	}

	if err := s.Register(JobBalances, &Interval{Every: cfg.BalanceInterval, InitialDelay: cfg.BalanceInitialDelay}, duties.SyncAllBalances); err != nil {
		return err
	}
	if err := s.Register(JobTransactions, daily, duties.SyncAllTransactions); err != nil {
		return err
	}
	return s.Register(JobTokenRefresh, &Interval{Every: cfg.TokenRefreshInterval, InitialDelay: cfg.TokenRefreshInterval}, duties.RefreshExpiringTokens)
}
