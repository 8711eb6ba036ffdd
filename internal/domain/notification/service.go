package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ofsync/internal/domain/consent"
	"ofsync/internal/shared/messages"
)

// Service tells account holders about consent lifecycle changes.
type Service struct {
	repo      Repository
	messenger Messenger
	texts     *messages.Messages
	logger    *slog.Logger
}

var _ consent.Notifier = (*Service)(nil)

// NewService creates a notification service. messenger may be nil, in which case
// notifications are only stored.
func NewService(repo Repository, messenger Messenger, texts *messages.Messages, logger *slog.Logger) *Service {
	if texts == nil {
		texts = messages.Defaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, messenger: messenger, texts: texts, logger: logger}
}

// RegisterDevice registers a device token for a user.
// A token already registered to another user is reassigned.
func (s *Service) RegisterDevice(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

func (s *Service) ConsentExpired(ctx context.Context, c *consent.Consent) error {
	return s.sendConsentMessage(ctx, c, s.texts.ConsentExpired, "expired")
}

func (s *Service) ConsentRevoked(ctx context.Context, c *consent.Consent) error {
	return s.sendConsentMessage(ctx, c, s.texts.ConsentRevoked, "revoked")
}

func (s *Service) sendConsentMessage(ctx context.Context, c *consent.Consent, text messages.MessageText, event string) error {
	title := render(text.Title, c)
	body := render(text.Body, c)
	data := map[string]string{
		"route":       CategoryConsent,
		"event":       event,
		"consentId":   c.ID,
		"institution": c.InstitutionCode,
	}

	tokens, err := s.repo.GetActiveTokensByUserID(ctx, c.UserID)
	if err != nil {
		return fmt.Errorf("failed to get device tokens: %w", err)
	}

	if len(tokens) == 0 {
		s.logger.DebugContext(ctx, "no active device tokens", "user_id", c.UserID)
	} else if s.messenger != nil {
		tokenStrings := make([]string, len(tokens))
		for i, t := range tokens {
			tokenStrings[i] = t.Token
		}
		if err := s.messenger.SendMulticast(ctx, tokenStrings, title, body, data); err != nil {
			s.logger.ErrorContext(ctx, "failed to send consent notification", "user_id", c.UserID, "consent_id", c.ID, "error", err)
		}
	}

	if _, err := s.repo.CreateNotification(ctx, CreateNotificationParams{
		UserID:   c.UserID,
		Title:    title,
		Message:  body,
		Category: CategoryConsent,
		Data:     data,
	}); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

func render(tmpl string, c *consent.Consent) string {
	return strings.NewReplacer("{institution}", c.InstitutionCode).Replace(tmpl)
}
