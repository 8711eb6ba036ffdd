package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ofsync/internal/domain/synclog"
)

func TestStatusKey(t *testing.T) {
	assert.Equal(t, "ofsync:sync-status:acc-1:BALANCE", statusKey("acc-1", synclog.SyncTypeBalance))
	assert.Equal(t, "ofsync:sync-status:acc-1:TRANSACTIONS", statusKey("acc-1", synclog.SyncTypeTransactions))
}

func TestNewStatusCacheDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultStatusTTL, NewStatusCache(nil, 0).ttl)
	assert.Equal(t, time.Minute, NewStatusCache(nil, time.Minute).ttl)
}
