package openfinance

import (
	"context"
	"time"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/shared/metrics"
)

const (
	EventBalanceSynced      = "balance.synced"
	EventTransactionsSynced = "transactions.synced"
)

// SyncEvent tells downstream consumers that an account has fresh data.
// Delivery is at least once; consumers must tolerate duplicates.
type SyncEvent struct {
	Type            string    `json:"type"`
	AccountID       string    `json:"accountId"`
	UserID          int64     `json:"userId"`
	ConsentID       string    `json:"consentId"`
	RecordsImported int       `json:"recordsImported"`
	SyncedAt        time.Time `json:"syncedAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event SyncEvent) error
}

func (o *Orchestrator) publish(ctx context.Context, acc *account.ConnectedAccount, syncType synclog.SyncType, records int) {
	if o.publisher == nil {
		return
	}

	eventType := EventBalanceSynced
	if syncType == synclog.SyncTypeTransactions {
		eventType = EventTransactionsSynced
	}

	event := SyncEvent{
		Type:            eventType,
		AccountID:       acc.ID,
		UserID:          acc.UserID,
		ConsentID:       acc.ConsentID,
		RecordsImported: records,
		SyncedAt:        o.now(),
	}

	if err := o.publisher.Publish(ctx, event); err != nil {
		metrics.EventsPublished.WithLabelValues(eventType, "failed").Inc()
		o.logger.WarnContext(ctx, "failed to publish sync event", "account_id", acc.ID, "event", eventType, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType, "published").Inc()
}
