package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ofsync/internal/domain/consent"
)

type ConsentManager interface {
	Grant(ctx context.Context, params consent.GrantParams) (*consent.Consent, error)
	Get(ctx context.Context, consentID string) (*consent.Consent, error)
	Refresh(ctx context.Context, consentID string) (*consent.Consent, error)
	Revoke(ctx context.Context, consentID string) (*consent.Consent, error)
}

type ConsentHandler struct {
	consents ConsentManager
	logger   *slog.Logger
}

func NewConsentHandler(consents ConsentManager, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{consents: consents, logger: logger}
}

// GrantConsentRequest carries the token set obtained by the authorization flow.
type GrantConsentRequest struct {
	UserID          int64     `json:"userId"`
	InstitutionCode string    `json:"institutionCode"`
	Scopes          []string  `json:"scopes"`
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// HandleGrant handles POST /api/admin/consents. Account discovery follows
// asynchronously through the consent_granted notification.
func (h *ConsentHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req GrantConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := h.consents.Grant(r.Context(), consent.GrantParams{
		UserID:          req.UserID,
		InstitutionCode: req.InstitutionCode,
		Scopes:          req.Scopes,
		AccessToken:     req.AccessToken,
		RefreshToken:    req.RefreshToken,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to grant consent", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGet handles GET /api/admin/consents/{id}. Tokens are never serialized.
func (h *ConsentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.consents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to get consent", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, consent.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleRefresh handles POST /api/admin/consents/{id}/refresh
func (h *ConsentHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := h.consents.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to refresh consent", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleRevoke handles POST /api/admin/consents/{id}/revoke
func (h *ConsentHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	c, err := h.consents.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to revoke consent", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
