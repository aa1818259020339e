package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bselee/enviroflow/core/adapter"
	"github.com/bselee/enviroflow/core/command"
	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/events"
	"github.com/bselee/enviroflow/core/logger"
	"github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/core/model"
	"github.com/bselee/enviroflow/core/monitoring"
	"github.com/bselee/enviroflow/internal/eventbus"
)

// RateLimiter admits or rejects one command for a controller.
type RateLimiter interface {
	Allow(controllerID string) bool
}

// Executor runs schedules against controllers. It is safe for concurrent use
// when its collaborators are.
type Executor struct {
	limiter   RateLimiter
	adapters  adapter.Provider
	decrypter credentials.Decrypter

	log         logger.Logger
	metrics     metrics.MetricsSink
	execBus     *eventbus.TypedBus[events.ExecutionEvent]
	attemptBus  *eventbus.TypedBus[events.AttemptEvent]
	maxAttempts int
	backoffBase time.Duration
	sleep       Sleeper
	now         func() time.Time
	newID       func() string
}

// New creates an Executor. The limiter, adapter provider and decrypter are
// required.
func New(limiter RateLimiter, adapters adapter.Provider, decrypter credentials.Decrypter, opts ...Option) (*Executor, error) {
	if limiter == nil {
		return nil, errors.New("executor: rate limiter is required")
	}
	if adapters == nil {
		return nil, errors.New("executor: adapter provider is required")
	}
	if decrypter == nil {
		return nil, errors.New("executor: decrypter is required")
	}
	e := &Executor{
		limiter:     limiter,
		adapters:    adapters,
		decrypter:   decrypter,
		log:         logger.NopLogger{},
		metrics:     metrics.NopSink{},
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		sleep:       ContextSleep,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Backoff returns the wait after the given 1-based attempt.
func (e *Executor) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return e.backoffBase * time.Duration(1<<(attempt-1))
}

// Execute dispatches s to controller c as evaluated at the instant at. The
// command and the result timestamp are derived from at; the clock only
// measures latency. A zero at means the current time. room is only used for
// event context and may be nil.
func (e *Executor) Execute(ctx context.Context, s model.DeviceSchedule, c model.Controller, room *model.Room, at time.Time, dryRun bool) model.ExecutionResult {
	start := e.now()
	if at.IsZero() {
		at = start
	}
	res := model.ExecutionResult{
		ID:             e.newID(),
		ScheduleID:     s.ID,
		ScheduleName:   s.Name,
		ControllerID:   c.ID,
		ControllerName: c.Name,
		Timestamp:      at,
	}
	res = e.run(ctx, s, c, dryRun, res)
	e.finish(s, c, room, res, e.now().Sub(start))
	return res
}

func (e *Executor) run(ctx context.Context, s model.DeviceSchedule, c model.Controller, dryRun bool, res model.ExecutionResult) model.ExecutionResult {
	if !e.limiter.Allow(c.ID) {
		res.Action = model.ActionRateLimited
		return fail(res, fmt.Errorf("%w for controller %s", ErrRateLimited, c.ID))
	}

	cmd, err := command.Build(s, res.Timestamp)
	if err != nil {
		res.Action = string(s.Schedule.Action)
		return fail(res, fmt.Errorf("%w: %v", ErrInvalidSchedule, err))
	}
	res.Action = string(cmd.Type)
	res.Value = cmd.Value

	if dryRun {
		res.Status = model.StatusDryRun
		return res
	}

	if c.Brand.IsReadOnly() {
		res.Status = model.StatusSkipped
		res.Kind = model.KindReadOnly
		res.Error = fmt.Sprintf("%s: %s controllers have no control capability", ErrReadOnlyBrand, c.Brand)
		return res
	}

	if !e.adapters.IsBrandSupported(c.Brand) {
		return fail(res, fmt.Errorf("%w: %s", ErrUnsupportedBrand, c.Brand))
	}

	creds, err := e.decrypter.Decrypt(ctx, c.EncryptedCredentials)
	if err != nil {
		// A bad key or blob does not heal on retry.
		return fail(res, fmt.Errorf("%w: %v", ErrDecryption, err))
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		res.Attempts = attempt
		out, err := e.attempt(ctx, res.ID, s, c, creds, cmd, attempt)
		if err == nil {
			res.Status = model.StatusSuccess
			if out.ActualValue != nil {
				res.Value = out.ActualValue
			}
			return res
		}
		lastErr = err
		if attempt == e.maxAttempts {
			break
		}
		wait := e.Backoff(attempt)
		e.log.Warnf("schedule %s attempt %d/%d failed: %v; retrying in %s", s.ID, attempt, e.maxAttempts, err, wait)
		if serr := e.sleep(ctx, wait); serr != nil {
			lastErr = fmt.Errorf("%w: %v", err, serr)
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: failed after %d retries", ErrCommand, e.maxAttempts)
	}
	return fail(res, lastErr)
}

// attempt performs one connect/command/disconnect cycle.
func (e *Executor) attempt(ctx context.Context, execID string, s model.DeviceSchedule, c model.Controller, creds credentials.Credentials, cmd model.Command, n int) (adapter.ControlResult, error) {
	a, err := e.adapters.Adapter(c.Brand)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnection, err)
		e.recordAttempt(execID, s, c, n, "connect", err, 0)
		return adapter.ControlResult{}, err
	}

	t0 := e.now()
	sessionID, err := a.Connect(ctx, creds)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConnection, err)
		e.recordAttempt(execID, s, c, n, "connect", err, e.now().Sub(t0))
		return adapter.ControlResult{}, err
	}
	e.recordAttempt(execID, s, c, n, "connect", nil, e.now().Sub(t0))

	defer func() {
		if derr := a.Disconnect(ctx, sessionID); derr != nil {
			disconnectFailure.Inc()
			e.log.Warnf("disconnect %s: %v", sessionID, derr)
		}
	}()

	t1 := e.now()
	out, err := a.ControlDevice(ctx, sessionID, s.DevicePort, cmd)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrCommand, err)
	}
	e.recordAttempt(execID, s, c, n, "command", err, e.now().Sub(t1))
	return out, err
}

func (e *Executor) recordAttempt(execID string, s model.DeviceSchedule, c model.Controller, n int, stage string, err error, latency time.Duration) {
	outcome := "ok"
	errText := ""
	if err != nil {
		outcome = "error"
		errText = err.Error()
	}
	attemptsTotal.WithLabelValues(string(c.Brand), stage, outcome).Inc()
	e.log.Debugw("adapter attempt", map[string]any{
		"schedule_id":   s.ID,
		"controller_id": c.ID,
		"attempt":       n,
		"stage":         stage,
		"outcome":       outcome,
	})
	if ar, ok := e.metrics.(metrics.AttemptRecorder); ok {
		if merr := ar.RecordAttempt(metrics.AttemptRecord{
			ExecutionID:  execID,
			ControllerID: c.ID,
			Brand:        c.Brand,
			Attempt:      n,
			Stage:        stage,
			Err:          errText,
			Latency:      latency,
			Time:         e.now(),
		}); merr != nil {
			e.log.Errorf("record attempt: %v", merr)
		}
	}
	if e.attemptBus != nil {
		e.attemptBus.Publish(events.AttemptEvent{
			ExecutionID:  execID,
			ScheduleID:   s.ID,
			ControllerID: c.ID,
			Brand:        c.Brand,
			Attempt:      n,
			Stage:        stage,
			Err:          err,
			Latency:      latency,
		})
	}
}

func (e *Executor) finish(s model.DeviceSchedule, c model.Controller, room *model.Room, res model.ExecutionResult, d time.Duration) {
	executionsTotal.WithLabelValues(string(res.Status), string(res.Kind)).Inc()
	executionLatency.WithLabelValues(string(res.Status)).Observe(d.Seconds())

	switch res.Status {
	case model.StatusFailed:
		e.log.Errorf("schedule %s on controller %s failed: %s", s.ID, c.ID, res.Error)
		if res.Kind != model.KindRateLimited {
			tags := monitoring.ScheduleTags(s.ID, c.ID, string(c.Brand))
			monitoring.CaptureException(errors.New(res.Error), tags)
		}
	case model.StatusSkipped:
		e.log.Infof("schedule %s skipped: %s", s.ID, res.Error)
	default:
		e.log.Infof("schedule %s -> %s %s", s.ID, res.Status, res.Action)
	}

	if err := e.metrics.RecordExecution(metrics.ExecutionRecord{
		ExecutionID:  res.ID,
		ScheduleID:   s.ID,
		ControllerID: c.ID,
		Brand:        c.Brand,
		Status:       res.Status,
		Action:       res.Action,
		Value:        res.Value,
		Kind:         res.Kind,
		Attempts:     res.Attempts,
		Duration:     d,
		Time:         res.Timestamp,
	}); err != nil {
		e.log.Errorf("record execution: %v", err)
	}

	if e.execBus != nil {
		ev := events.ExecutionEvent{Result: res, UserID: s.UserID, Brand: c.Brand, Latency: d}
		if room != nil {
			ev.RoomID = room.ID
		} else {
			ev.RoomID = s.RoomID
		}
		e.execBus.Publish(ev)
	}
}

func fail(res model.ExecutionResult, err error) model.ExecutionResult {
	res.Status = model.StatusFailed
	res.Error = err.Error()
	res.Kind = KindOf(err)
	return res
}
