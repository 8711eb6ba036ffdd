package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	ofclient "ofsync/internal/infrastructure/openfinance"
)

type PaymentService interface {
	Initiate(ctx context.Context, consentID string, req ofclient.PaymentRequest) (*ofclient.PaymentResponse, error)
	Status(ctx context.Context, consentID, paymentID string) (ofclient.PaymentStatus, error)
	Cancel(ctx context.Context, consentID, paymentID string) error
}

type PaymentHandler struct {
	payments PaymentService
	logger   *slog.Logger
}

func NewPaymentHandler(payments PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// InitiatePaymentRequest takes the amount as a decimal string ("100.50") so no
// float rounding happens on the way in.
type InitiatePaymentRequest struct {
	EndToEndID      string          `json:"endToEndId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DebtorAccount   string          `json:"debtorAccount"`
	CreditorAccount string          `json:"creditorAccount"`
	PaymentType     string          `json:"paymentType"`
}

type PaymentResponse struct {
	PaymentID  string                 `json:"paymentId"`
	EndToEndID string                 `json:"endToEndId,omitempty"`
	Status     ofclient.PaymentStatus `json:"status"`
}

// HandleInitiate handles POST /api/admin/consents/{id}/payments
func (h *PaymentHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.payments.Initiate(r.Context(), chi.URLParam(r, "id"), ofclient.PaymentRequest{
		EndToEndID:      req.EndToEndID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		DebtorAccount:   req.DebtorAccount,
		CreditorAccount: req.CreditorAccount,
		PaymentType:     req.PaymentType,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to initiate payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentResponse{
		PaymentID:  resp.PaymentID,
		EndToEndID: resp.EndToEndID,
		Status:     resp.Status,
	})
}

// HandleStatus handles GET /api/admin/consents/{id}/payments/{paymentId}
func (h *PaymentHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	status, err := h.payments.Status(r.Context(), chi.URLParam(r, "id"), paymentID)
	if err != nil {
		writeDomainError(w, r, h.logger, "Failed to get payment status", err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentResponse{PaymentID: paymentID, Status: status})
}

// HandleCancel handles DELETE /api/admin/consents/{id}/payments/{paymentId}
func (h *PaymentHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.payments.Cancel(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "paymentId")); err != nil {
		writeDomainError(w, r, h.logger, "Failed to cancel payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
