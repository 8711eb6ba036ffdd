// Package retry runs outbound calls with a bounded, linear backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ofsync/internal/shared/metrics"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// ServerSide is implemented by errors that can tell whether the remote side failed (5xx).
type ServerSide interface {
	IsServerError() bool
}

// Classifier reports whether a failed attempt may be retried.
type Classifier func(err error) bool

// IsServerError is the default classifier: only errors that identify themselves as
// server-side failures are retried.
func IsServerError(err error) bool {
	var se ServerSide
	return errors.As(err, &se) && se.IsServerError()
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Executor applies the same retry policy to every outbound call.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	retryable   Classifier
	newTimer    func() backoff.Timer
	logger      *slog.Logger
}

type Option func(*Executor)

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(e *Executor) {
		e.newTimer = newTimer
	}
}

// WithClassifier replaces IsServerError as the retry predicate.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		e.retryable = c
	}
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		retryable:   IsServerError,
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// MaxAttempts returns the total number of attempts, first call included.
func (e *Executor) MaxAttempts() int {
	return e.maxAttempts
}

// Do runs op until it succeeds, fails with a non-retryable error, or the attempt
// budget is spent. The wait before attempt n+1 is n * base delay.
func Do[T any](ctx context.Context, e *Executor, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0

	call := func() (T, error) {
		attempts++
		res, err := op(ctx)
		if err != nil && !e.retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, delay time.Duration) {
		metrics.OutboundRetries.WithLabelValues(operation).Inc()
		e.logger.WarnContext(ctx, "retrying open finance call",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", e.maxAttempts,
			"delay", delay,
			"error", err,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: e.baseDelay}, uint64(e.maxAttempts-1)),
		ctx,
	)

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	res, err := backoff.RetryNotifyWithTimerAndData(call, policy, notify, timer)
	if err != nil && ctx.Err() == nil && e.retryable(err) {
		return res, &ExhaustedError{Operation: operation, Attempts: attempts, Err: err}
	}
	return res, err
}

// linearBackOff yields base, 2*base, 3*base, ...
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}
