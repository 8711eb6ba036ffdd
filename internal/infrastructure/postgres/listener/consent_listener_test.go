package listener

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"ofsync/internal/domain/openfinance"
	"ofsync/internal/shared/logging"
)

type recordingDiscoverer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDiscoverer) DiscoverAccounts(ctx context.Context, consentID string) (*openfinance.DiscoveryResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, consentID)
	if d.err != nil {
		return nil, d.err
	}
	return &openfinance.DiscoveryResult{ConsentID: consentID, Created: 1}, nil
}

func TestHandleNotification(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
		err     error
	}{
		{"valid", `{"consent_id":"c-1","user_id":3,"institution_code":"itau"}`, []string{"c-1"}, nil},
		{"discovery error is logged", `{"consent_id":"c-2"}`, []string{"c-2"}, errors.New("provider down")},
		{"missing consent id", `{"user_id":3}`, nil, nil},
		{"malformed", `not json`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &recordingDiscoverer{err: tt.err}
			l := NewConsentListener("", d, logging.Discard())

			l.handleNotification(&pq.Notification{Channel: channelName, Extra: tt.payload})
			l.inflight.Wait()

			assert.Equal(t, tt.want, d.ids)
		})
	}
}
