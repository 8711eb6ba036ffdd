package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ofsync/internal/domain/openfinance"
)

var (
	jobTracer      = otel.Tracer("ofsync/scheduler")
	jobMeter       = otel.Meter("ofsync/scheduler")
	jobDuration, _ = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _    = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobSkipped, _  = jobMeter.Int64Counter("scheduler.job.skipped", metric.WithDescription("Runs skipped because the previous run of the job was still going"))
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job is already running")
	ErrStarted    = errors.New("scheduler already started")
)

// Duty is the body of a job.
type Duty func(ctx context.Context) (*openfinance.DutyResult, error)

type job struct {
	name     string
	schedule Schedule
	duty     Duty
	running  atomic.Bool
}

// Scheduler runs each registered job on its own goroutine and timer. A job never
// overlaps itself; different jobs run concurrently.
type Scheduler struct {
	jobs    map[string]*job
	order   []string
	logger  *slog.Logger
	now     func() time.Time
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]*job),
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a named job. It must be called before Start.
func (s *Scheduler) Register(name string, schedule Schedule, duty Duty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	s.jobs[name] = &job{name: name, schedule: schedule, duty: duty}
	s.order = append(s.order, name)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start launches one loop per job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, name := range s.order {
		j := s.jobs[name]
		s.wg.Add(1)
		go s.loop(j)
		s.logger.Info("job scheduled", "job", j.name, "schedule", j.schedule.String())
	}
}

func (s *Scheduler) loop(j *job) {
	defer s.wg.Done()

	next := j.schedule.Next(s.now())
	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := s.execute(s.ctx, j, "schedule"); errors.Is(err, ErrJobRunning) {
			jobSkipped.Add(s.ctx, 1, metric.WithAttributes(attribute.String("job", j.name)))
			s.logger.Warn("previous run still in progress, skipping", "job", j.name)
		}
		next = j.schedule.Next(s.now())
	}
}

// Run executes a job synchronously, outside its schedule. It returns ErrJobRunning
// when the job is already in progress.
func (s *Scheduler) Run(ctx context.Context, name string) (*openfinance.DutyResult, error) {
	j, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, j, "manual")
}

// Trigger starts a job in the background and returns at once. The run is bound to
// the scheduler's lifetime, not the caller's.
func (s *Scheduler) Trigger(name string) error {
	j, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.running.Store(false)
		_, _ = s.run(s.ctx, j, "trigger")
	}()
	return nil
}

func (s *Scheduler) lookup(name string) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return j, nil
}

// execute runs j unless it is already running.
func (s *Scheduler) execute(ctx context.Context, j *job, trigger string) (*openfinance.DutyResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrJobRunning
	}
	defer j.running.Store(false)
	return s.run(ctx, j, trigger)
}

// run invokes the duty with tracing and metrics. Panics are recovered so the job's
// loop keeps going.
func (s *Scheduler) run(ctx context.Context, j *job, trigger string) (res *openfinance.DutyResult, err error) {
	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.String("job.name", j.name),
			attribute.String("job.trigger", trigger),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "job panicked", "job", j.name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}

		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.ErrorContext(ctx, "job failed", "job", j.name, "trigger", trigger, "error", err)
		} else {
			s.logger.InfoContext(ctx, "job finished", "job", j.name, "trigger", trigger, "duration", time.Since(start))
		}
		attrs := metric.WithAttributes(attribute.String("job", j.name), attribute.String("status", status))
		jobTotal.Add(ctx, 1, attrs)
		jobDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("job", j.name)))
	}()

	return j.duty(ctx)
}

// Running reports whether the named job is executing right now.
func (s *Scheduler) Running(name string) bool {
	j, err := s.lookup(name)
	return err == nil && j.running.Load()
}

// Shutdown stops all loops and waits up to timeout for running jobs.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.logger.Info("scheduler shutting down")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-time.After(timeout):
		s.logger.Warn("timeout waiting for scheduler jobs to stop", "timeout", timeout)
	}
}
