package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/consent"
	"ofsync/internal/domain/institution"
	"ofsync/internal/domain/notification"
	"ofsync/internal/domain/synclog"
	ofclient "ofsync/internal/infrastructure/openfinance"
	"ofsync/internal/infrastructure/retry"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, consent.ErrNotFound),
		errors.Is(err, account.ErrAccountNotFound),
		errors.Is(err, synclog.ErrNotFound),
		errors.Is(err, institution.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, consent.ErrInvalidInput),
		errors.Is(err, ofclient.ErrInvalidPayment),
		errors.Is(err, synclog.ErrInvalidSyncType),
		errors.Is(err, notification.ErrInvalidDeviceType),
		errors.Is(err, notification.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, consent.ErrConsentInactive),
		errors.Is(err, consent.ErrMissingScope),
		errors.Is(err, consent.ErrRefreshRejected):
		return http.StatusConflict
	case errors.Is(err, ofclient.ErrUnauthorized):
		return http.StatusBadGateway
	}

	var apiErr *ofclient.APIError
	var exhausted *retry.ExhaustedError
	if errors.As(err, &apiErr) || errors.As(err, &exhausted) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeDomainError answers with the mapped status. Internal errors are logged and
// their text withheld.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), msg, "error", err, "path", r.URL.Path)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}
