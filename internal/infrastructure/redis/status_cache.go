package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ofsync/internal/domain/synclog"
)

const (
	statusKeyPrefix  = "ofsync:sync-status:"
	DefaultStatusTTL = 24 * time.Hour
)

// StatusCache stores the latest SyncStatusView per account and sync type.
type StatusCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ synclog.StatusCache = (*StatusCache)(nil)

func NewStatusCache(client redis.Cmdable, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(accountID string, syncType synclog.SyncType) string {
	return statusKeyPrefix + accountID + ":" + string(syncType)
}

// Get returns nil, nil on a cache miss.
func (c *StatusCache) Get(ctx context.Context, accountID string, syncType synclog.SyncType) (*synclog.SyncStatusView, error) {
	raw, err := c.client.Get(ctx, statusKey(accountID, syncType)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync status: %w", err)
	}

	var view synclog.SyncStatusView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("decode sync status: %w", err)
	}
	return &view, nil
}

func (c *StatusCache) Set(ctx context.Context, view synclog.SyncStatusView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode sync status: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(view.AccountID, view.SyncType), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	return nil
}
