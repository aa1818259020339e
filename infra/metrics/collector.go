package metrics

import (
	"context"
	"time"

	"github.com/bselee/enviroflow/core/events"
	"github.com/bselee/enviroflow/core/logger"
	coremetrics "github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/internal/eventbus"
)

// StartEventCollector forwards execution and attempt events to sink until ctx
// is canceled or both buses are closed. Either bus may be nil. Sink errors are
// logged to log, which may be nil.
func StartEventCollector(ctx context.Context, execs *eventbus.TypedBus[events.ExecutionEvent], attempts *eventbus.TypedBus[events.AttemptEvent], sink coremetrics.MetricsSink, log logger.Logger) (done <-chan struct{}) {
	log = logger.OrNop(log)
	finished := make(chan struct{})
	if sink == nil || (execs == nil && attempts == nil) {
		close(finished)
		return finished
	}
	var execCh <-chan events.ExecutionEvent
	var attemptCh <-chan events.AttemptEvent
	if execs != nil {
		execCh = execs.Subscribe()
	}
	if attempts != nil {
		attemptCh = attempts.Subscribe()
	}
	go func() {
		defer close(finished)
		defer func() {
			if execs != nil {
				execs.Unsubscribe(execCh)
			}
			if attempts != nil {
				attempts.Unsubscribe(attemptCh)
			}
		}()
		for execCh != nil || attemptCh != nil {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-execCh:
				if !ok {
					execCh = nil
					continue
				}
				if err := sink.RecordExecution(executionRecord(ev)); err != nil {
					log.Errorf("record execution %s: %v", ev.Result.ID, err)
				}
			case ev, ok := <-attemptCh:
				if !ok {
					attemptCh = nil
					continue
				}
				if r, ok := sink.(coremetrics.AttemptRecorder); ok {
					if err := r.RecordAttempt(attemptRecord(ev)); err != nil {
						log.Errorf("record attempt %s/%d: %v", ev.ExecutionID, ev.Attempt, err)
					}
				}
			}
		}
	}()
	return finished
}

func executionRecord(ev events.ExecutionEvent) coremetrics.ExecutionRecord {
	r := ev.Result
	return coremetrics.ExecutionRecord{
		ExecutionID:  r.ID,
		ScheduleID:   r.ScheduleID,
		ControllerID: r.ControllerID,
		Brand:        ev.Brand,
		Status:       r.Status,
		Action:       r.Action,
		Value:        r.Value,
		Kind:         r.Kind,
		Attempts:     r.Attempts,
		Duration:     ev.Latency,
		Time:         r.Timestamp,
	}
}

func attemptRecord(ev events.AttemptEvent) coremetrics.AttemptRecord {
	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	return coremetrics.AttemptRecord{
		ExecutionID:  ev.ExecutionID,
		ControllerID: ev.ControllerID,
		Brand:        ev.Brand,
		Attempt:      ev.Attempt,
		Stage:        ev.Stage,
		Err:          errText,
		Latency:      ev.Latency,
		Time:         time.Now(),
	}
}
