package executor

import (
	"context"
	"time"

	"github.com/bselee/enviroflow/core/events"
	"github.com/bselee/enviroflow/core/logger"
	"github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/internal/eventbus"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) { e.log = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.MetricsSink) Option {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithRetry sets the attempt budget and backoff base. The wait after attempt
// n is base * 2^(n-1), so a 2s base waits 2s then 4s.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(e *Executor) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if base > 0 {
			e.backoffBase = base
		}
	}
}

// WithSleeper overrides how backoff waits are performed.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides how execution ids are generated.
func WithIDGenerator(f func() string) Option {
	return func(e *Executor) {
		if f != nil {
			e.newID = f
		}
	}
}

// WithExecutionBus publishes one ExecutionEvent per result.
func WithExecutionBus(b *eventbus.TypedBus[events.ExecutionEvent]) Option {
	return func(e *Executor) { e.execBus = b }
}

// WithAttemptBus publishes one AttemptEvent per network attempt.
func WithAttemptBus(b *eventbus.TypedBus[events.AttemptEvent]) Option {
	return func(e *Executor) { e.attemptBus = b }
}
