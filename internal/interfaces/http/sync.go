package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ofsync/internal/domain/openfinance"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/interfaces/scheduler"
)

// JobTrigger starts a scheduled job out of band.
type JobTrigger interface {
	Trigger(name string) error
}

// AccountSyncer is the per-account slice of the orchestrator.
type AccountSyncer interface {
	SyncAccountBalance(ctx context.Context, accountID string) (int, error)
	SyncAccountTransactions(ctx context.Context, accountID string) (int, error)
	DiscoverAccounts(ctx context.Context, consentID string) (*openfinance.DiscoveryResult, error)
}

type StatusReader interface {
	LatestStatus(ctx context.Context, accountID string, syncType synclog.SyncType) (*synclog.SyncStatusView, error)
	StaleAccounts(ctx context.Context, window time.Duration) ([]string, error)
}

type SyncHandler struct {
	jobs       JobTrigger
	syncer     AccountSyncer
	status     StatusReader
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewSyncHandler(jobs JobTrigger, syncer AccountSyncer, status StatusReader, staleAfter time.Duration, logger *slog.Logger) *SyncHandler {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &SyncHandler{jobs: jobs, syncer: syncer, status: status, staleAfter: staleAfter, logger: logger}
}

type TriggerResponse struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}

type AccountSyncResponse struct {
	AccountID       string           `json:"accountId"`
	SyncType        synclog.SyncType `json:"syncType"`
	RecordsImported int              `json:"recordsImported"`
}

type StaleAccountsResponse struct {
	Window     string   `json:"window"`
	AccountIDs []string `json:"accountIds"`
}

// HandleSyncStatus handles GET /api/accounts/{id}/sync-status?type=BALANCE|TRANSACTIONS
func (h *SyncHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	syncType, err := synclog.ParseSyncType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.status.LatestStatus(r.Context(), accountID, syncType)
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to read sync status", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleTrigger answers 202 when the job was started and 409 when it is already running.
func (h *SyncHandler) HandleTrigger(job string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h.jobs.Trigger(job)
		switch {
		case err == nil:
			h.logger.InfoContext(r.Context(), "job triggered", "job", job)
			writeJSON(w, http.StatusAccepted, TriggerResponse{Job: job, Status: "started"})
		case errors.Is(err, scheduler.ErrJobRunning):
			writeJSON(w, http.StatusConflict, TriggerResponse{Job: job, Status: "already running"})
		default:
			h.logger.ErrorContext(r.Context(), "failed to trigger job", "job", job, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to trigger job")
		}
	}
}

// HandleSyncAccount handles POST /api/admin/accounts/{id}/sync?type=BALANCE|TRANSACTIONS
// and runs synchronously.
func (h *SyncHandler) HandleSyncAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	syncType, err := synclog.ParseSyncType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var records int
	switch syncType {
	case synclog.SyncTypeBalance:
		records, err = h.syncer.SyncAccountBalance(r.Context(), accountID)
	case synclog.SyncTypeTransactions:
		records, err = h.syncer.SyncAccountTransactions(r.Context(), accountID)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to sync account", err)
		return
	}

	writeJSON(w, http.StatusOK, AccountSyncResponse{AccountID: accountID, SyncType: syncType, RecordsImported: records})
}

// HandleDiscover handles POST /api/admin/consents/{id}/discover
func (h *SyncHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.DiscoverAccounts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to discover accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleStaleAccounts handles GET /api/admin/accounts/stale?window=24h
func (h *SyncHandler) HandleStaleAccounts(w http.ResponseWriter, r *http.Request) {
	window := h.staleAfter
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration such as 24h")
			return
		}
		window = parsed
	}

	ids, err := h.status.StaleAccounts(r.Context(), window)
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to list stale accounts", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, StaleAccountsResponse{Window: window.String(), AccountIDs: ids})
}
