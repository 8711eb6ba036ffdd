package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"ofsync/internal/shared/metrics"
)

const DefaultRefreshThreshold = 10 * time.Minute

type Config struct {
	RefreshThreshold time.Duration
}

// Service owns the consent lifecycle. It is the only writer of consent tokens.
type Service struct {
	repo      Repository
	refresher Refresher
	accounts  AccountDisabler
	notifier  Notifier
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time

	// in-flight refreshes keyed by consent ID. A consent is REFRESHING only while
	// its call is in here; storage keeps it ACTIVE until the outcome is written.
	refreshing singleflight.Group
}

// NewService creates a consent service. accounts and notifier may be nil.
func NewService(repo Repository, refresher Refresher, accounts AccountDisabler, notifier Notifier, cfg Config, logger *slog.Logger) *Service {
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = DefaultRefreshThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		refresher: refresher,
		accounts:  accounts,
		notifier:  notifier,
		threshold: cfg.RefreshThreshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Grant persists a new ACTIVE consent after the bank authorization completed.
func (s *Service) Grant(ctx context.Context, params GrantParams) (*Consent, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	c, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create consent: %w", err)
	}

	s.logger.InfoContext(ctx, "consent granted",
		"consent_id", c.ID, "user_id", c.UserID, "institution", c.InstitutionCode)
	return c, nil
}

func (s *Service) Get(ctx context.Context, consentID string) (*Consent, error) {
	c, err := s.repo.GetByID(ctx, consentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// AccessToken returns the stored access token of an active consent. It never
// refreshes inline; expired tokens are renewed by RefreshExpiringTokens.
// An empty scope skips the scope check.
func (s *Service) AccessToken(ctx context.Context, consentID, scope string) (string, error) {
	c, err := s.Get(ctx, consentID)
	if err != nil {
		return "", err
	}
	if c.EffectiveStatus(s.now()) != StatusActive {
		return "", ErrConsentInactive
	}
	if scope != "" && !c.HasScope(scope) {
		return "", fmt.Errorf("%w: %s", ErrMissingScope, scope)
	}
	return c.AccessToken, nil
}

// RefreshExpiringTokens refreshes every ACTIVE consent expiring within the threshold.
// Individual failures are counted and logged; they never stop the batch.
func (s *Service) RefreshExpiringTokens(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult

	cutoff := s.now().Add(s.threshold)
	consents, err := s.repo.ListActiveExpiringBefore(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to list expiring consents: %w", err)
	}
	result.Eligible = len(consents)

	for _, c := range consents {
		if ctx.Err() != nil {
			break
		}

		_, err := s.Refresh(ctx, c.ID)
		switch {
		case err == nil:
			result.Refreshed++
			metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()
		case errors.Is(err, ErrRefreshRejected):
			result.Expired++
			metrics.TokenRefreshes.WithLabelValues("expired").Inc()
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.ID, err))
			metrics.TokenRefreshes.WithLabelValues("failed").Inc()
			s.logger.ErrorContext(ctx, "token refresh failed", "consent_id", c.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "token refresh run finished",
		"eligible", result.Eligible,
		"refreshed", result.Refreshed,
		"expired", result.Expired,
		"failed", result.Failed,
	)
	return result, nil
}

// Refresh renews one consent's tokens. Concurrent calls for the same consent share
// a single provider round trip.
func (s *Service) Refresh(ctx context.Context, consentID string) (*Consent, error) {
	v, err, _ := s.refreshing.Do(consentID, func() (any, error) {
		return s.refresh(ctx, consentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Consent), nil
}

func (s *Service) refresh(ctx context.Context, consentID string) (*Consent, error) {
	c, err := s.Get(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, ErrConsentInactive
	}

	if c.RefreshToken == "" {
		s.expire(ctx, c, "no refresh token")
		return nil, fmt.Errorf("%w: consent has no refresh token", ErrRefreshRejected)
	}

	tokens, err := s.refresher.Refresh(ctx, c.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			s.expire(ctx, c, err.Error())
			return nil, err
		}
		s.logger.WarnContext(ctx, "transient token refresh failure, consent stays active",
			"consent_id", c.ID, "error", err)
		return nil, fmt.Errorf("failed to refresh consent %s: %w", c.ID, err)
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = c.RefreshToken
	}
	if tokens.RefreshToken != c.RefreshToken {
		s.logger.InfoContext(ctx, "rotating refresh token", "consent_id", c.ID)
	}

	if err := s.repo.UpdateTokens(ctx, c.ID, *tokens); err != nil {
		return nil, fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	c.AccessToken = tokens.AccessToken
	c.RefreshToken = tokens.RefreshToken
	c.ExpiresAt = tokens.ExpiresAt

	s.logger.InfoContext(ctx, "consent tokens refreshed",
		"consent_id", c.ID, "expires_at", c.ExpiresAt.Format(time.RFC3339))
	return c, nil
}

func (s *Service) expire(ctx context.Context, c *Consent, reason string) {
	if err := s.repo.UpdateStatus(ctx, c.ID, StatusExpired, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark consent expired", "consent_id", c.ID, "error", err)
		return
	}
	c.Status = StatusExpired

	s.logger.WarnContext(ctx, "consent expired", "consent_id", c.ID, "reason", reason)

	if s.notifier != nil {
		if err := s.notifier.ConsentExpired(ctx, c); err != nil {
			s.logger.WarnContext(ctx, "failed to notify consent expiry", "consent_id", c.ID, "error", err)
		}
	}
}

// FlagForRefresh moves the expiry to now so the next refresh run picks the consent up.
// Called after the provider rejected the access token.
func (s *Service) FlagForRefresh(ctx context.Context, consentID string) error {
	if err := s.repo.SetExpiresAt(ctx, consentID, s.now()); err != nil {
		return fmt.Errorf("failed to flag consent for refresh: %w", err)
	}
	s.logger.InfoContext(ctx, "consent flagged for refresh", "consent_id", consentID)
	return nil
}

// Revoke ends a consent at the holder's request and disables its accounts.
// Revoking a revoked consent is a no-op.
func (s *Service) Revoke(ctx context.Context, consentID string) (*Consent, error) {
	c, err := s.Get(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusRevoked {
		return c, nil
	}

	now := s.now()
	if err := s.repo.UpdateStatus(ctx, c.ID, StatusRevoked, now); err != nil {
		return nil, fmt.Errorf("failed to revoke consent: %w", err)
	}
	c.Status = StatusRevoked
	c.RevokedAt = &now

	if s.accounts != nil {
		n, err := s.accounts.DisableByConsent(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to disable accounts of revoked consent: %w", err)
		}
		s.logger.InfoContext(ctx, "accounts disabled", "consent_id", c.ID, "count", n)
	}

	if s.notifier != nil {
		if err := s.notifier.ConsentRevoked(ctx, c); err != nil {
			s.logger.WarnContext(ctx, "failed to notify consent revocation", "consent_id", c.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "consent revoked", "consent_id", c.ID)
	return c, nil
}
