package consent

import (
	"errors"
	"slices"
	"strings"
	"time"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// Scopes granted by the account holder at the bank.
const (
	ScopeAccounts     = "accounts"
	ScopeBalances     = "balances"
	ScopeTransactions = "transactions"
	ScopePayments     = "payments"
)

var validScopes = map[string]struct{}{
	ScopeAccounts:     {},
	ScopeBalances:     {},
	ScopeTransactions: {},
	ScopePayments:     {},
}

// Domain errors
var (
	ErrNotFound        = errors.New("consent not found")
	ErrConsentInactive = errors.New("consent is not active")
	ErrMissingScope    = errors.New("consent does not grant the required scope")
	// ErrRefreshRejected marks a refresh the provider will never accept (invalid_grant and friends).
	ErrRefreshRejected = errors.New("refresh token rejected by provider")
	ErrInvalidInput    = errors.New("invalid consent input")
)

// Consent is a user's authorization for this system to act on accounts at one institution.
type Consent struct {
	ID              string     `json:"id"`
	UserID          int64      `json:"userId"`
	InstitutionCode string     `json:"institutionCode"`
	Scopes          []string   `json:"scopes"`
	AccessToken     string     `json:"-"`
	RefreshToken    string     `json:"-"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	Status          Status     `json:"status"`
	RevokedAt       *time.Time `json:"revokedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// EffectiveStatus derives the status at now. A consent past its expiry with no
// refresh token can never be renewed and is reported EXPIRED even if stored ACTIVE.
func (c *Consent) EffectiveStatus(now time.Time) Status {
	switch {
	case c.Status == StatusRevoked || c.RevokedAt != nil:
		return StatusRevoked
	case c.Status == StatusExpired:
		return StatusExpired
	case !c.ExpiresAt.After(now) && c.RefreshToken == "":
		return StatusExpired
	default:
		return StatusActive
	}
}

// NeedsRefresh reports whether an active consent expires within threshold of now.
func (c *Consent) NeedsRefresh(now time.Time, threshold time.Duration) bool {
	return c.Status == StatusActive && c.ExpiresAt.Sub(now) < threshold
}

func (c *Consent) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// TokenSet is the result of a token grant.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// GrantParams carries the outcome of the bank authorization redirect.
type GrantParams struct {
	UserID          int64
	InstitutionCode string
	Scopes          []string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       time.Time
}

func (p *GrantParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if strings.TrimSpace(p.InstitutionCode) == "" {
		return errors.New("institution code is required")
	}
	if p.AccessToken == "" {
		return errors.New("access token is required")
	}
	if p.ExpiresAt.IsZero() {
		return errors.New("token expiry is required")
	}
	if len(p.Scopes) == 0 {
		return errors.New("at least one scope is required")
	}
	for _, s := range p.Scopes {
		if _, ok := validScopes[s]; !ok {
			return errors.New("invalid scope: " + s)
		}
	}
	return nil
}

// RefreshResult summarizes one RefreshExpiringTokens run.
type RefreshResult struct {
	Eligible  int      `json:"eligible"`
	Refreshed int      `json:"refreshed"`
	Expired   int      `json:"expired"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
