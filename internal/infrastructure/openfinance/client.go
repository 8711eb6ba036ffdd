package openfinance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ofsync/internal/infrastructure/retry"
)

const defaultTimeout = 30 * time.Second

// maxResponseBody caps how much of a provider response is read.
const maxResponseBody = 10 << 20

var errResponseTooLarge = errors.New("response body too large")

// Client talks to the provider's account information and payment initiation APIs.
// It holds no token state; every call carries the caller's access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	executor   *retry.Executor
	logger     *slog.Logger
}

var (
	_ AccountInformationGateway = (*Client)(nil)
	_ PaymentInitiationGateway  = (*Client)(nil)
)

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
}

func NewClient(cfg Config, executor *retry.Executor, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = retry.New(retry.Config{}, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		executor: executor,
		logger:   logger,
	}
}

// do performs one logical call through the retry executor and returns the raw 2xx body.
// header is added to every attempt and may be nil.
func (c *Client) do(ctx context.Context, operation, method, path, token string, query url.Values, payload any, header http.Header) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(ctx, c.executor, operation, func(ctx context.Context) ([]byte, error) {
		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute %s: %w", operation, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
		}
		if len(respBody) > maxResponseBody {
			return nil, fmt.Errorf("failed to read %s response: %w (limit %d bytes)", operation, errResponseTooLarge, maxResponseBody)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newAPIError(method, path, resp.StatusCode, respBody)
		}
		return respBody, nil
	})
}
