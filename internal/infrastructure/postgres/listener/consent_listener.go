package listener

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"ofsync/internal/domain/openfinance"
)

const (
	channelName       = "consent_granted"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
	discoveryTimeout  = 2 * time.Minute
)

// ConsentNotification is the payload of the consent_granted trigger
type ConsentNotification struct {
	ConsentID       string `json:"consent_id"`
	UserID          int64  `json:"user_id"`
	InstitutionCode string `json:"institution_code"`
}

// Discoverer enumerates the accounts of a freshly granted consent.
type Discoverer interface {
	DiscoverAccounts(ctx context.Context, consentID string) (*openfinance.DiscoveryResult, error)
}

// ConsentListener runs account discovery whenever a consent row is inserted.
type ConsentListener struct {
	connStr    string
	discoverer Discoverer
	logger     *slog.Logger
	shutdownCh chan struct{}
	done       chan struct{}
	inflight   sync.WaitGroup
}

func NewConsentListener(connStr string, discoverer Discoverer, logger *slog.Logger) *ConsentListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsentListener{
		connStr:    connStr,
		discoverer: discoverer,
		logger:     logger.With("channel", channelName),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *ConsentListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.logger.Info("consent listener started")
}

// Stop shuts the listener down and waits for running discoveries.
func (l *ConsentListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.inflight.Wait()
	l.logger.Info("consent listener stopped")
}

func (l *ConsentListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.logger.Info("reconnecting to postgres for notifications")
		}
	}
}

func (l *ConsentListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Info("connected to notification channel")
		case pq.ListenerEventDisconnected:
			l.logger.Warn("disconnected from notification channel", "error", err)
		case pq.ListenerEventReconnected:
			l.logger.Info("reconnected to notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn("notification connection attempt failed", "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(channelName); err != nil {
		l.logger.Error("failed to listen", "error", err)
		return
	}

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// connection lost
				return
			}
			l.handleNotification(n)
		case <-time.After(pingInterval):
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn("listener ping failed", "error", err)
				}
			}()
		}
	}
}

func (l *ConsentListener) handleNotification(n *pq.Notification) {
	var payload ConsentNotification
	if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil || payload.ConsentID == "" {
		l.logger.Error("invalid consent notification payload", "payload", n.Extra, "error", err)
		return
	}

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		// detached from the listen ctx so shutdown does not abort a half-done discovery
		ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
		defer cancel()
		l.discover(ctx, payload)
	}()
}

func (l *ConsentListener) discover(ctx context.Context, payload ConsentNotification) {
	res, err := l.discoverer.DiscoverAccounts(ctx, payload.ConsentID)
	if err != nil {
		l.logger.ErrorContext(ctx, "account discovery failed", "consent_id", payload.ConsentID, "error", err)
		return
	}
	l.logger.InfoContext(ctx, "account discovery finished",
		"consent_id", payload.ConsentID, "created", res.Created, "updated", res.Updated)
}
