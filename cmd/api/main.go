package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"ofsync/internal/app"
	"ofsync/internal/infrastructure/postgres/listener"
	"ofsync/internal/interfaces/scheduler"
	"ofsync/internal/shared/config"
	"ofsync/internal/shared/logging"
	"ofsync/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	sched := scheduler.New(logger)
	if err := scheduler.RegisterSyncJobs(sched, deps.Orchestrator, scheduler.JobsConfig{
		BalanceInterval:      cfg.Sync.BalanceInterval,
		BalanceInitialDelay:  cfg.Sync.BalanceInitialDelay,
		TransactionSchedule:  cfg.Sync.TransactionSchedule,
		TokenRefreshInterval: cfg.Sync.TokenRefreshInterval,
		Location:             cfg.Sync.Location,
	}); err != nil {
		return err
	}
	// with SYNC_ENABLED=false every run is a logged no-op
	sched.Start()

	consentListener := listener.NewConsentListener(cfg.Database.ConnectionString(), deps.Orchestrator, logger)
	consentListener.Start(ctx)

	handler := SetupRoutes(deps, sched, cfg, logger)
	srv := StartServer(NewServerConfigFromConfig(handler, cfg), logger)

	<-ctx.Done()

	GracefulShutdown(srv, sched, consentListener, app.ShutdownTimeout, logger)
	return nil
}
