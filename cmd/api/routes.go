package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ofsync/internal/app"
	httphandlers "ofsync/internal/interfaces/http"
	"ofsync/internal/interfaces/scheduler"
	"ofsync/internal/shared/config"
	"ofsync/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *app.Dependencies, sched *scheduler.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	syncHandler := httphandlers.NewSyncHandler(sched, deps.Orchestrator, deps.Recorder, cfg.Sync.StaleAfter, logger)
	consentHandler := httphandlers.NewConsentHandler(deps.Consents, logger)
	paymentHandler := httphandlers.NewPaymentHandler(deps.Payments, logger)
	notificationHandler := httphandlers.NewNotificationHandler(deps.Notifications, logger)
	institutionHandler := httphandlers.NewInstitutionHandler(deps.Institutions, logger)

	checks := make(map[string]httphandlers.HealthCheck)
	for name, check := range deps.HealthChecks() {
		checks[name] = check
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.RouteMetrics)

	r.Get("/health", httphandlers.HandleHealth(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AdminKey(cfg.Server.AdminAPIKey))

		r.Get("/accounts/{id}/sync-status", syncHandler.HandleSyncStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sync/balances", syncHandler.HandleTrigger(scheduler.JobBalances))
			r.Post("/sync/transactions", syncHandler.HandleTrigger(scheduler.JobTransactions))
			r.Post("/tokens/refresh", syncHandler.HandleTrigger(scheduler.JobTokenRefresh))

			r.Get("/accounts/stale", syncHandler.HandleStaleAccounts)
			r.Post("/accounts/{id}/sync", syncHandler.HandleSyncAccount)

			r.Post("/consents", consentHandler.HandleGrant)
			r.Get("/consents/{id}", consentHandler.HandleGet)
			r.Post("/consents/{id}/discover", syncHandler.HandleDiscover)
			r.Post("/consents/{id}/refresh", consentHandler.HandleRefresh)
			r.Post("/consents/{id}/revoke", consentHandler.HandleRevoke)

			r.Post("/consents/{id}/payments", paymentHandler.HandleInitiate)
			r.Get("/consents/{id}/payments/{paymentId}", paymentHandler.HandleStatus)
			r.Delete("/consents/{id}/payments/{paymentId}", paymentHandler.HandleCancel)

			r.Post("/devices", notificationHandler.HandleRegisterDevice)
			r.Get("/institutions", institutionHandler.HandleList)
		})
	})

	return middleware.Telemetry(r)
}
