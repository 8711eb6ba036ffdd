package openfinance

import (
	"context"
	"fmt"
	"time"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/consent"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/domain/transaction"
	ofclient "ofsync/internal/infrastructure/openfinance"
)

// maxPages stops a provider that keeps reporting more pages.
const maxPages = 1000

// SyncAllTransactions imports transactions booked since each account's last sync.
func (o *Orchestrator) SyncAllTransactions(ctx context.Context) (*DutyResult, error) {
	return o.runDuty(ctx, DutyTransactions, func(ctx context.Context, res *DutyResult) error {
		return o.forEachAccount(ctx, res, synclog.SyncTypeTransactions, o.syncTransactions)
	})
}

// SyncAccountTransactions runs a transaction sync for one account outside the schedule.
func (o *Orchestrator) SyncAccountTransactions(ctx context.Context, accountID string) (int, error) {
	acc, err := o.enabledAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return o.syncAccount(ctx, acc, synclog.SyncTypeTransactions, o.syncTransactions)
}

// transactionWindow returns [lastSyncedAt, now], or the lookback window for a never-synced account.
func (o *Orchestrator) transactionWindow(acc *account.ConnectedAccount) (time.Time, time.Time) {
	to := o.now()
	if acc.LastSyncedAt != nil && !acc.LastSyncedAt.IsZero() {
		return *acc.LastSyncedAt, to
	}
	return to.AddDate(0, 0, -o.cfg.LookbackDays), to
}

func (o *Orchestrator) syncTransactions(ctx context.Context, acc *account.ConnectedAccount) (int, error) {
	token, err := o.consents.AccessToken(ctx, acc.ConsentID, consent.ScopeTransactions)
	if err != nil {
		return 0, err
	}

	from, to := o.transactionWindow(acc)
	imported := 0

	for page := 1; page <= maxPages; page++ {
		result, err := o.gateway.GetTransactions(ctx, token, acc.ExternalAccountID, ofclient.TransactionQuery{
			From:     &from,
			To:       &to,
			Page:     page,
			PageSize: o.cfg.PageSize,
		})
		if err != nil {
			return imported, fmt.Errorf("page %d: %w", page, err)
		}

		for _, tx := range result.Transactions {
			if tx.TransactionID == "" {
				o.logger.WarnContext(ctx, "skipping transaction without id", "account_id", acc.ID, "page", page)
				continue
			}
			if err := o.upsertTransaction(ctx, acc, tx); err != nil {
				return imported, err
			}
			imported++
		}

		if len(result.Transactions) == 0 || result.CurrentPage >= result.TotalPages {
			break
		}
		if page == maxPages {
			o.logger.WarnContext(ctx, "transaction paging limit reached", "account_id", acc.ID, "pages", maxPages)
		}
	}

	if err := o.locks.with(acc.ID, func() error {
		return o.accounts.MarkTransactionsSynced(ctx, acc.ID, to)
	}); err != nil {
		return imported, fmt.Errorf("failed to advance sync window: %w", err)
	}
	return imported, nil
}

func (o *Orchestrator) upsertTransaction(ctx context.Context, acc *account.ConnectedAccount, tx ofclient.Transaction) error {
	currency := tx.Currency
	if currency == "" {
		currency = acc.Currency
	}
	if currency == "" {
		currency = ofclient.DefaultCurrency
	}

	_, _, err := o.transactions.Upsert(ctx, transaction.UpsertParams{
		AccountID:       acc.ID,
		ExternalID:      tx.TransactionID,
		Amount:          tx.Amount,
		Currency:        currency,
		Description:     tx.Description,
		BookingDate:     tx.BookingDate,
		CreditDebitType: tx.CreditDebitType,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.TransactionID, err)
	}
	return nil
}
