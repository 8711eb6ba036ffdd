package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) IsServerError() bool { return int(e) >= 500 }

// recordingTimer fires immediately and remembers every requested delay.
type recordingTimer struct {
	ch     chan time.Time
	delays []time.Duration
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{ch: make(chan time.Time, 1)}
}

func (t *recordingTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.ch <- time.Now()
}

func (t *recordingTimer) Stop() {}

func (t *recordingTimer) C() <-chan time.Time { return t.ch }

func newTestExecutor(timer *recordingTimer) *Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{}, logger, WithTimer(func() backoff.Timer { return timer }))
}

func TestDo_RetriesServerErrorsWithLinearDelay(t *testing.T) {
	timer := newRecordingTimer()
	exec := newTestExecutor(timer)

	calls := 0
	_, err := Do(context.Background(), exec, "get_balance", func(ctx context.Context) (int, error) {
		calls++
		return 0, statusErr(503)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, timer.delays)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, "get_balance", exhausted.Operation)
	assert.ErrorIs(t, err, statusErr(503))
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	timer := newRecordingTimer()
	exec := newTestExecutor(timer)

	calls := 0
	_, err := Do(context.Background(), exec, "get_balance", func(ctx context.Context) (int, error) {
		calls++
		return 0, statusErr(404)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.delays)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	assert.ErrorIs(t, err, statusErr(404))
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	timer := newRecordingTimer()
	exec := newTestExecutor(timer)

	calls := 0
	got, err := Do(context.Background(), exec, "list_accounts", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", statusErr(502)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, timer.delays)
}

func TestDo_CustomClassifier(t *testing.T) {
	timer := newRecordingTimer()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := New(Config{MaxAttempts: 2, BaseDelay: time.Second}, logger,
		WithTimer(func() backoff.Timer { return timer }),
		WithClassifier(func(err error) bool { return true }),
	)

	calls := 0
	_, err := Do(context.Background(), exec, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, timer.delays)
	assert.Equal(t, 2, exec.MaxAttempts())
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	calls := 0
	_, err := Do(ctx, exec, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, statusErr(500)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{base: 2 * time.Second}
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 6*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 2*time.Second, b.NextBackOff())
}
