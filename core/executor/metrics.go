package executor

import "github.com/prometheus/client_golang/prometheus"

var (
	executionsTotal   *prometheus.CounterVec
	attemptsTotal     *prometheus.CounterVec
	executionLatency  *prometheus.HistogramVec
	disconnectFailure prometheus.Counter
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter) {
	execs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedule_executions_total",
			Help: "Schedule executions by terminal status and error kind",
		},
		[]string{"status", "kind"},
	)
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_attempts_total",
			Help: "Adapter attempts by stage and outcome",
		},
		[]string{"brand", "stage", "outcome"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schedule_execution_duration_seconds",
			Help:    "Wall time of one schedule execution including retries",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)
	disc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adapter_disconnect_failures_total",
			Help: "Number of failed adapter disconnects",
		},
	)
	return execs, attempts, lat, disc
}

func init() {
	executionsTotal, attemptsTotal, executionLatency, disconnectFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers executor metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(executionsTotal, attemptsTotal, executionLatency, disconnectFailure)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	executionsTotal, attemptsTotal, executionLatency, disconnectFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
