package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bselee/enviroflow/core/engine"
	"github.com/bselee/enviroflow/infra/logger"
)

// Ticker evaluates schedules at an instant.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (engine.TickReport, error)
}

// Scheduler fires ticks on a fixed interval. A tick still running when the
// next one is due is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ticker Ticker
	log    logger.Logger
	every  string
	now    func() time.Time
}

// NewScheduler creates a Scheduler for interval, which must be at least one
// second.
func NewScheduler(interval time.Duration, t Ticker, log logger.Logger) (*Scheduler, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("tick interval %s is below one second", interval)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	cl := cronLogger{log}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		ticker: t,
		log:    log,
		every:  "@every " + interval.String(),
		now:    time.Now,
	}, nil
}

// Start schedules the tick job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.every, func() { s.fire(ctx) }); err != nil {
		return fmt.Errorf("schedule tick %q: %w", s.every, err)
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.ticker.Tick(ctx, s.now())
	if err != nil {
		s.log.Errorf("tick: %v", err)
		return
	}
	s.log.Debugf("tick evaluated=%d fired=%d in %s", rep.Evaluated, rep.Fired, rep.Duration)
}

// cronLogger routes cron runner messages to the service logger.
type cronLogger struct{ l logger.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("cron: "+msg, kv(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kv(keysAndValues)
	fields["error"] = err.Error()
	c.l.Errorf("cron: %s %v", msg, fields)
}

func kv(keysAndValues []interface{}) map[string]any {
	out := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
