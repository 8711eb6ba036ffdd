package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"ofsync/internal/domain/consent"
	"ofsync/internal/infrastructure/retry"
)

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

var permanentGrantErrors = map[string]struct{}{
	"invalid_grant":       {},
	"invalid_client":      {},
	"unauthorized_client": {},
}

// TokenRefresher performs the OAuth refresh_token grant against the provider.
type TokenRefresher struct {
	config     oauth2.Config
	httpClient *http.Client
	executor   *retry.Executor
	logger     *slog.Logger
	now        func() time.Time
}

var _ consent.Refresher = (*TokenRefresher)(nil)

type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

func NewTokenRefresher(cfg OAuthConfig, executor *retry.Executor, logger *slog.Logger) *TokenRefresher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = retry.New(retry.Config{}, logger)
	}

	return &TokenRefresher{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// Refresh exchanges refreshToken for a new token set. Token endpoint 5xx answers are
// retried; invalid_grant, invalid_client, unauthorized_client and 400/401 answers are
// wrapped with consent.ErrRefreshRejected.
func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*consent.TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	tok, err := retry.Do(ctx, r.executor, "refresh_token", func(ctx context.Context) (*oauth2.Token, error) {
		src := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return nil, classifyTokenError(err)
		}
		return tok, nil
	})
	if err != nil {
		if isPermanentGrantError(err) {
			return nil, fmt.Errorf("%w: %w", consent.ErrRefreshRejected, err)
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	set := &consent.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if set.ExpiresAt.IsZero() {
		set.ExpiresAt = r.now().Add(defaultTokenLifetime)
	}
	return set, nil
}

// classifyTokenError turns an oauth2 RetrieveError into an APIError so the retry
// executor sees 5xx answers as retryable.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}
	apiErr := &APIError{
		Method:     http.MethodPost,
		Path:       "token",
		StatusCode: re.Response.StatusCode,
		Code:       re.ErrorCode,
		Message:    re.ErrorDescription,
	}
	if apiErr.Code == "" && apiErr.Message == "" {
		apiErr = newAPIError(http.MethodPost, "token", re.Response.StatusCode, re.Body)
	}
	return apiErr
}

func isPermanentGrantError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if _, ok := permanentGrantErrors[apiErr.Code]; ok {
		return true
	}
	return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized
}
