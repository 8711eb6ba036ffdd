package consent

import (
	"context"
	"time"
)

// Repository defines the interface for consent data access.
// Update methods return ErrNotFound when no row matches.
type Repository interface {
	// Create stores a new consent and returns it with ID and timestamps set
	Create(ctx context.Context, params GrantParams) (*Consent, error)

	// GetByID returns nil, nil when the consent does not exist
	GetByID(ctx context.Context, id string) (*Consent, error)

	// ListActiveExpiringBefore lists ACTIVE consents whose expiry is before cutoff
	ListActiveExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Consent, error)

	// UpdateTokens replaces access token, refresh token and expiry in one statement
	UpdateTokens(ctx context.Context, id string, tokens TokenSet) error

	// UpdateStatus sets the status; REVOKED also stamps revoked_at with at
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error

	SetExpiresAt(ctx context.Context, id string, expiresAt time.Time) error
}

// Refresher exchanges a refresh token for a new token set. Implementations wrap
// unrecoverable provider answers with ErrRefreshRejected.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// AccountDisabler soft-disables the connected accounts of a revoked consent.
type AccountDisabler interface {
	DisableByConsent(ctx context.Context, consentID string) (int, error)
}

// Notifier tells the account holder their consent stopped working.
type Notifier interface {
	ConsentExpired(ctx context.Context, c *Consent) error
	ConsentRevoked(ctx context.Context, c *Consent) error
}
