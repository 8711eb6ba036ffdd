// Package payment initiates and tracks payments on behalf of a consent holder.
package payment

import (
	"context"
	"fmt"
	"log/slog"

	"ofsync/internal/domain/consent"
	ofclient "ofsync/internal/infrastructure/openfinance"
)

// TokenSource yields the access token of a consent for a scope.
type TokenSource interface {
	AccessToken(ctx context.Context, consentID, scope string) (string, error)
}

type Service struct {
	tokens  TokenSource
	gateway ofclient.PaymentInitiationGateway
	logger  *slog.Logger
}

func NewService(tokens TokenSource, gateway ofclient.PaymentInitiationGateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tokens: tokens, gateway: gateway, logger: logger}
}

// Initiate submits a payment. A REJECTED status is returned as a normal response.
func (s *Service) Initiate(ctx context.Context, consentID string, req ofclient.PaymentRequest) (*ofclient.PaymentResponse, error) {
	if err := ofclient.ValidatePayment(req); err != nil {
		return nil, err
	}

	token, err := s.tokens.AccessToken(ctx, consentID, consent.ScopePayments)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.InitiatePayment(ctx, token, req)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}

	s.logger.InfoContext(ctx, "payment initiated",
		"consent_id", consentID,
		"payment_id", resp.PaymentID,
		"end_to_end_id", resp.EndToEndID,
		"status", resp.Status,
	)
	return resp, nil
}

func (s *Service) Status(ctx context.Context, consentID, paymentID string) (ofclient.PaymentStatus, error) {
	token, err := s.tokens.AccessToken(ctx, consentID, consent.ScopePayments)
	if err != nil {
		return ofclient.PaymentStatusUnknown, err
	}

	status, err := s.gateway.GetPaymentStatus(ctx, token, paymentID)
	if err != nil {
		return ofclient.PaymentStatusUnknown, fmt.Errorf("failed to get payment status: %w", err)
	}
	return status, nil
}

func (s *Service) Cancel(ctx context.Context, consentID, paymentID string) error {
	token, err := s.tokens.AccessToken(ctx, consentID, consent.ScopePayments)
	if err != nil {
		return err
	}

	if err := s.gateway.CancelPayment(ctx, token, paymentID); err != nil {
		return fmt.Errorf("failed to cancel payment: %w", err)
	}

	s.logger.InfoContext(ctx, "payment cancelled", "consent_id", consentID, "payment_id", paymentID)
	return nil
}
