package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/bselee/enviroflow/core/metrics"
)

// PromSink records executions in Prometheus metrics.
type PromSink struct {
	results  *prometheus.CounterVec
	attempts *prometheus.HistogramVec
	latency  *prometheus.HistogramVec
	fired    prometheus.Gauge
	ticks    prometheus.Counter
}

// NewPromSink registers metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_results_total",
			Help: "Execution results by controller, brand and status",
		}, []string{"controller_id", "brand", "status"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schedule_result_attempts",
			Help:    "Network attempts needed per execution",
			Buckets: []float64{0, 1, 2, 3, 5},
		}, []string{"brand"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adapter_attempt_latency_seconds",
			Help:    "Latency of adapter connect and command calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"brand", "stage"}),
		fired: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schedule_tick_fired",
			Help: "Schedules fired by the last tick",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_ticks_total",
			Help: "Number of evaluation ticks",
		}),
	}
	var err error
	if s.results, err = register(reg, s.results); err != nil {
		return nil, err
	}
	if s.attempts, err = register(reg, s.attempts); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.fired, err = register(reg, s.fired); err != nil {
		return nil, err
	}
	if s.ticks, err = register(reg, s.ticks); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c is a duplicate.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordExecution counts the result and observes its attempt count.
func (s *PromSink) RecordExecution(rec coremetrics.ExecutionRecord) error {
	s.results.WithLabelValues(rec.ControllerID, string(rec.Brand), string(rec.Status)).Inc()
	s.attempts.WithLabelValues(string(rec.Brand)).Observe(float64(rec.Attempts))
	return nil
}

// RecordAttempt observes adapter latency.
func (s *PromSink) RecordAttempt(rec coremetrics.AttemptRecord) error {
	s.latency.WithLabelValues(string(rec.Brand), rec.Stage).Observe(rec.Latency.Seconds())
	return nil
}

// RecordTick updates the tick counter and the fired gauge.
func (s *PromSink) RecordTick(rec coremetrics.TickRecord) error {
	s.ticks.Inc()
	s.fired.Set(float64(rec.Fired))
	return nil
}
