package http

import (
	"context"
	"log/slog"
	"net/http"

	"ofsync/internal/domain/institution"
)

type InstitutionLister interface {
	List(ctx context.Context) ([]*institution.Institution, error)
}

type InstitutionHandler struct {
	institutions InstitutionLister
	logger       *slog.Logger
}

func NewInstitutionHandler(institutions InstitutionLister, logger *slog.Logger) *InstitutionHandler {
	return &InstitutionHandler{institutions: institutions, logger: logger}
}

// HandleList handles GET /api/admin/institutions
func (h *InstitutionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.institutions.List(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to list institutions", err)
		return
	}
	if list == nil {
		list = []*institution.Institution{}
	}
	writeJSON(w, http.StatusOK, list)
}
