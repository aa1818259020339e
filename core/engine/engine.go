// Package engine drives one evaluation tick over every active schedule.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bselee/enviroflow/core/logger"
	"github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/core/model"
	"github.com/bselee/enviroflow/core/monitoring"
)

// Target is an active schedule with the controller and room it belongs to.
type Target struct {
	Schedule   model.DeviceSchedule
	Controller model.Controller
	Room       *model.Room
}

// Source lists the schedules considered on each tick.
type Source interface {
	ActiveSchedules(ctx context.Context) ([]Target, error)
}

// MetadataUpdater stores last_executed, execution_count and last_error.
type MetadataUpdater interface {
	UpdateScheduleMetadata(ctx context.Context, scheduleID string, res model.ExecutionResult) error
}

// AuditLogger records each execution.
type AuditLogger interface {
	LogScheduleExecution(ctx context.Context, res model.ExecutionResult, userID, roomID string) error
}

// Matcher decides whether a schedule fires at now.
type Matcher interface {
	ShouldExecute(s model.DeviceSchedule, room *model.Room, now time.Time) bool
}

// Executor dispatches a schedule as evaluated at an instant.
type Executor interface {
	Execute(ctx context.Context, s model.DeviceSchedule, c model.Controller, room *model.Room, at time.Time, dryRun bool) model.ExecutionResult
}

// TickReport summarizes one tick.
type TickReport struct {
	Time      time.Time
	Evaluated int
	Fired     int
	Panics    int
	ByStatus  map[model.ExecutionStatus]int
	Results   []model.ExecutionResult
	Duration  time.Duration
}

// DefaultParallelism bounds concurrent executions within a tick.
const DefaultParallelism = 4

// Engine wires matcher, executor and sinks together.
type Engine struct {
	source   Source
	matcher  Matcher
	executor Executor
	audit    AuditLogger
	meta     MetadataUpdater

	log         logger.Logger
	metrics     metrics.MetricsSink
	parallelism int
	dryRun      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = logger.OrNop(l) } }

// WithMetrics sets the sink receiving tick records.
func WithMetrics(m metrics.MetricsSink) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithParallelism sets how many schedules execute at once.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithDryRun makes every execution a dry run. Metadata is left untouched.
func WithDryRun(dry bool) Option { return func(e *Engine) { e.dryRun = dry } }

// WithAudit sets the audit logger.
func WithAudit(a AuditLogger) Option { return func(e *Engine) { e.audit = a } }

// WithMetadata sets the metadata updater.
func WithMetadata(m MetadataUpdater) Option { return func(e *Engine) { e.meta = m } }

// New creates an Engine.
func New(source Source, matcher Matcher, executor Executor, opts ...Option) (*Engine, error) {
	if source == nil || matcher == nil || executor == nil {
		return nil, fmt.Errorf("engine: source, matcher and executor are required")
	}
	e := &Engine{
		source:      source,
		matcher:     matcher,
		executor:    executor,
		log:         logger.NopLogger{},
		metrics:     metrics.NopSink{},
		parallelism: DefaultParallelism,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// DryRun reports whether the engine only simulates executions.
func (e *Engine) DryRun() bool { return e.dryRun }

// Tick evaluates every active schedule at now and executes those that match.
// Only a failure to list schedules is returned as an error.
func (e *Engine) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	start := time.Now()
	targets, err := e.source.ActiveSchedules(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("list schedules: %w", err)
	}
	rep := TickReport{
		Time:      now,
		Evaluated: len(targets),
		ByStatus:  make(map[model.ExecutionStatus]int),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, t := range targets {
		if !e.matcher.ShouldExecute(t.Schedule, t.Room, now) {
			continue
		}
		g.Go(func() error {
			res, ok := e.runOne(gctx, t, now)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				rep.Panics++
				return nil
			}
			rep.Fired++
			rep.ByStatus[res.Status]++
			rep.Results = append(rep.Results, res)
			return nil
		})
	}
	_ = g.Wait()
	rep.Duration = time.Since(start)

	e.log.Infof("tick %s: evaluated=%d fired=%d success=%d failed=%d skipped=%d dry_run=%d",
		now.Format(time.RFC3339), rep.Evaluated, rep.Fired,
		rep.ByStatus[model.StatusSuccess], rep.ByStatus[model.StatusFailed],
		rep.ByStatus[model.StatusSkipped], rep.ByStatus[model.StatusDryRun])
	if tr, ok := e.metrics.(metrics.TickRecorder); ok {
		if err := tr.RecordTick(metrics.TickRecord{
			Evaluated: rep.Evaluated,
			Fired:     rep.Fired,
			ByStatus:  rep.ByStatus,
			Duration:  rep.Duration,
			Time:      now,
		}); err != nil {
			e.log.Errorf("record tick: %v", err)
		}
	}
	return rep, nil
}

// runOne executes a single target. ok is false when the execution panicked.
func (e *Engine) runOne(ctx context.Context, t Target, now time.Time) (res model.ExecutionResult, ok bool) {
	s := t.Schedule
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic executing schedule %s: %v", s.ID, r)
			e.log.Errorf("%v", err)
			monitoring.CaptureException(err, monitoring.ScheduleTags(s.ID, t.Controller.ID, string(t.Controller.Brand)))
			ok = false
		}
	}()

	res = e.executor.Execute(ctx, s, t.Controller, t.Room, now, e.dryRun)

	roomID := s.RoomID
	if t.Room != nil {
		roomID = t.Room.ID
	}
	if e.audit != nil {
		if err := e.audit.LogScheduleExecution(ctx, res, s.UserID, roomID); err != nil {
			e.log.Errorf("audit schedule %s: %v", s.ID, err)
		}
	}
	if e.meta != nil && !e.dryRun {
		if err := e.meta.UpdateScheduleMetadata(ctx, s.ID, res); err != nil {
			e.log.Errorf("update metadata of schedule %s: %v", s.ID, err)
		}
	}
	return res, true
}
