package metrics

import (
	"time"

	"github.com/bselee/enviroflow/core/model"
)

// ExecutionRecord describes one finished schedule execution.
type ExecutionRecord struct {
	ExecutionID  string
	ScheduleID   string
	ControllerID string
	Brand        model.Brand
	Status       model.ExecutionStatus
	Action       string
	Value        *float64
	Kind         model.ErrorKind
	Attempts     int
	Duration     time.Duration
	Time         time.Time
}

// MetricsSink records executions.
type MetricsSink interface {
	RecordExecution(rec ExecutionRecord) error
}

// AttemptRecord describes one network attempt against an adapter.
type AttemptRecord struct {
	ExecutionID  string
	ControllerID string
	Brand        model.Brand
	Attempt      int
	Stage        string // "connect" or "command"
	Err          string
	Latency      time.Duration
	Time         time.Time
}

// AttemptRecorder is implemented by sinks able to record individual attempts.
type AttemptRecorder interface {
	RecordAttempt(rec AttemptRecord) error
}

// TickRecord summarizes one evaluation tick of the engine.
type TickRecord struct {
	Evaluated int
	Fired     int
	ByStatus  map[model.ExecutionStatus]int
	Duration  time.Duration
	Time      time.Time
}

// TickRecorder is implemented by sinks able to record tick summaries.
type TickRecorder interface {
	RecordTick(rec TickRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordExecution(ExecutionRecord) error { return nil }
func (NopSink) RecordAttempt(AttemptRecord) error     { return nil }
func (NopSink) RecordTick(TickRecord) error           { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordExecution forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordExecution(rec ExecutionRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordExecution(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordAttempt forwards attempts to sinks that support them.
func (m *MultiSink) RecordAttempt(rec AttemptRecord) error {
	for _, s := range m.Sinks {
		if ar, ok := s.(AttemptRecorder); ok {
			if err := ar.RecordAttempt(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTick forwards tick summaries to sinks that support them.
func (m *MultiSink) RecordTick(rec TickRecord) error {
	for _, s := range m.Sinks {
		if tr, ok := s.(TickRecorder); ok {
			if err := tr.RecordTick(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
