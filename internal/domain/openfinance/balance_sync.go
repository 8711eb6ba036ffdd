package openfinance

import (
	"context"
	"fmt"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/consent"
	"ofsync/internal/domain/synclog"
)

// SyncAllBalances refreshes the balance of every enabled account.
func (o *Orchestrator) SyncAllBalances(ctx context.Context) (*DutyResult, error) {
	return o.runDuty(ctx, DutyBalances, func(ctx context.Context, res *DutyResult) error {
		return o.forEachAccount(ctx, res, synclog.SyncTypeBalance, o.syncBalance)
	})
}

// SyncAccountBalance runs a balance sync for one account outside the schedule.
func (o *Orchestrator) SyncAccountBalance(ctx context.Context, accountID string) (int, error) {
	acc, err := o.enabledAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return o.syncAccount(ctx, acc, synclog.SyncTypeBalance, o.syncBalance)
}

// syncBalance leaves last_synced_at alone so the transaction window is not shortened.
func (o *Orchestrator) syncBalance(ctx context.Context, acc *account.ConnectedAccount) (int, error) {
	token, err := o.consents.AccessToken(ctx, acc.ConsentID, consent.ScopeBalances)
	if err != nil {
		return 0, err
	}

	bal, err := o.gateway.GetBalance(ctx, token, acc.ExternalAccountID)
	if err != nil {
		return 0, err
	}

	at := o.now()
	if err := o.locks.with(acc.ID, func() error {
		return o.accounts.MarkBalanceSynced(ctx, acc.ID, bal.Amount, bal.Currency, at)
	}); err != nil {
		return 0, fmt.Errorf("failed to store balance: %w", err)
	}
	return 1, nil
}

func (o *Orchestrator) enabledAccount(ctx context.Context, accountID string) (*account.ConnectedAccount, error) {
	acc, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if acc == nil || !acc.Enabled {
		return nil, account.ErrAccountNotFound
	}
	return acc, nil
}
