// Package app wires the sync core from configuration. Both the API server and the
// admin CLI build their object graph here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ofsync/internal/domain/consent"
	"ofsync/internal/domain/institution"
	"ofsync/internal/domain/notification"
	"ofsync/internal/domain/openfinance"
	"ofsync/internal/domain/payment"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/infrastructure/crypto"
	"ofsync/internal/infrastructure/firebase"
	"ofsync/internal/infrastructure/kafka"
	ofclient "ofsync/internal/infrastructure/openfinance"
	"ofsync/internal/infrastructure/postgres"
	redisinfra "ofsync/internal/infrastructure/redis"
	"ofsync/internal/infrastructure/retry"
	"ofsync/internal/shared/config"
	"ofsync/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB        *postgres.DB
	Redis     *redisinfra.Client
	Publisher *kafka.Publisher

	Accounts      *postgres.AccountRepository
	Consents      *consent.Service
	Orchestrator  *openfinance.Orchestrator
	Recorder      *synclog.Recorder
	Institutions  *institution.Service
	Payments      *payment.Service
	Notifications *notification.Service

	logger *slog.Logger
}

// NewDependencies connects to every backing service and builds the domain
// services. Redis, Kafka and Firebase are optional.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{logger: logger}

	db, err := postgres.NewWithPool(cfg.Database.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	deps.DB = db
	logger.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.DBName)

	if err := db.Migrate(ctx); err != nil {
		deps.Close()
		return nil, err
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	// Repositories
	consentRepo := postgres.NewConsentRepository(db, encryptor)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	syncLogRepo := postgres.NewSyncLogRepository(db)
	institutionRepo := postgres.NewInstitutionRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	deps.Accounts = accountRepo

	// Status cache
	var statusCache synclog.StatusCache
	rdb, err := redisinfra.New(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, sync status served from postgres", "error", err)
	} else if rdb != nil {
		deps.Redis = rdb
		statusCache = redisinfra.NewStatusCache(rdb, cfg.Redis.StatusTTL)
		logger.Info("redis status cache enabled")
	}

	// Downstream events
	var events openfinance.EventPublisher
	publisher, err := kafka.New(ctx, cfg.Kafka, logger)
	if err != nil {
		logger.Warn("kafka unavailable, sync events disabled", "error", err)
	} else if publisher != nil {
		deps.Publisher = publisher
		events = publisher
		logger.Info("kafka publisher enabled", "topic", cfg.Kafka.SyncTopic)
	}

	// Push notifications
	texts := messages.Defaults()
	if cfg.Messages.Path != "" {
		if texts, err = messages.Load(cfg.Messages.Path); err != nil {
			deps.Close()
			return nil, err
		}
	}
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken, logger)
		if err != nil {
			logger.Warn("firebase unavailable, push notifications disabled", "error", err)
		} else {
			messenger = fcm
		}
	}
	deps.Notifications = notification.NewService(notificationRepo, messenger, texts, logger)

	// Open Finance provider
	executor := retry.New(retry.Config{
		MaxAttempts: cfg.OpenFinance.RetryAttempts,
		BaseDelay:   cfg.OpenFinance.RetryBaseDelay,
	}, logger)
	client := ofclient.NewClient(ofclient.Config{
		BaseURL:  cfg.OpenFinance.BaseURL,
		Timeout:  cfg.OpenFinance.CallTimeout,
		PageSize: cfg.OpenFinance.PageSize,
	}, executor, logger)
	refresher := ofclient.NewTokenRefresher(ofclient.OAuthConfig{
		TokenURL:     cfg.OpenFinance.TokenURL,
		ClientID:     cfg.OpenFinance.ClientID,
		ClientSecret: cfg.OpenFinance.ClientSecret,
		Timeout:      cfg.OpenFinance.CallTimeout,
	}, executor, logger)

	// Domain services
	deps.Consents = consent.NewService(consentRepo, refresher, accountRepo, deps.Notifications, consent.Config{
		RefreshThreshold: cfg.Sync.TokenRefreshThreshold,
	}, logger)
	deps.Recorder = synclog.NewRecorder(syncLogRepo, statusCache, logger)
	deps.Institutions = institution.NewService(institutionRepo, logger)
	deps.Payments = payment.NewService(deps.Consents, client, logger)
	deps.Orchestrator = openfinance.New(openfinance.Config{
		Enabled:      cfg.Sync.Enabled,
		Workers:      cfg.Sync.Workers,
		LookbackDays: cfg.Sync.LookbackDays,
		PageSize:     cfg.OpenFinance.PageSize,
	}, client, deps.Consents, accountRepo, transactionRepo, deps.Recorder, events, logger)

	return deps, nil
}

// HealthChecks returns a probe per connected backing service.
func (d *Dependencies) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"postgres": d.DB.PingContext,
	}
	if d.Redis != nil {
		checks["redis"] = d.Redis.Health
	}
	return checks
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Publisher != nil {
		d.Publisher.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.logger.Warn("failed to close redis", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.logger.Warn("failed to close database", "error", err)
		}
	}
}

// ShutdownTimeout bounds graceful shutdown of servers, listener and scheduler.
const ShutdownTimeout = 30 * time.Second
