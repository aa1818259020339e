package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bselee/enviroflow/core/events"
	"github.com/bselee/enviroflow/core/factory"
	coremetrics "github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/core/model"
	"github.com/bselee/enviroflow/internal/eventbus"
)

func TestPromSink_RecordExecution(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordExecution(coremetrics.ExecutionRecord{
		ControllerID: "c1", Brand: "mqtt", Status: model.StatusSuccess, Attempts: 2,
	}))
	require.NoError(t, sink.RecordAttempt(coremetrics.AttemptRecord{Brand: "mqtt", Stage: "command", Latency: 10 * time.Millisecond}))
	require.NoError(t, sink.RecordTick(coremetrics.TickRecord{Fired: 3}))

	expected := `
# HELP schedule_results_total Execution results by controller, brand and status
# TYPE schedule_results_total counter
schedule_results_total{brand="mqtt",controller_id="c1",status="success"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(sink.results, strings.NewReader(expected)))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.latency))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.fired))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.ticks))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, a.RecordTick(coremetrics.TickRecord{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.ticks))
}

func TestEventCollectorForwards(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	execs := eventbus.NewTyped[events.ExecutionEvent](0)
	attempts := eventbus.NewTyped[events.AttemptEvent](0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := StartEventCollector(ctx, execs, attempts, sink, nil)
	execs.Publish(events.ExecutionEvent{
		Result: model.ExecutionResult{ControllerID: "c1", Status: model.StatusFailed},
		Brand:  "mqtt",
	})
	attempts.Publish(events.AttemptEvent{Brand: "mqtt", Stage: "connect"})
	execs.Close()
	attempts.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.results.WithLabelValues("c1", "mqtt", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.latency))
}

func TestEventCollectorWithoutBuses(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, nil, coremetrics.NopSink{}, nil)
	_, open := <-done
	assert.False(t, open)
}

type failingSink struct{ coremetrics.NopSink }

func (failingSink) RecordExecution(coremetrics.ExecutionRecord) error {
	return errors.New("influx down")
}

func (failingSink) RecordAttempt(coremetrics.AttemptRecord) error {
	return errors.New("influx down")
}

type errorLog struct {
	mu   sync.Mutex
	msgs []string
}

func (l *errorLog) Debugf(string, ...any)         {}
func (l *errorLog) Debugw(string, map[string]any) {}
func (l *errorLog) Infof(string, ...any)          {}
func (l *errorLog) Warnf(string, ...any)          {}

func (l *errorLog) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, fmt.Sprintf(format, args...))
}

func TestEventCollectorLogsSinkErrors(t *testing.T) {
	execs := eventbus.NewTyped[events.ExecutionEvent](4)
	attempts := eventbus.NewTyped[events.AttemptEvent](4)
	log := &errorLog{}
	done := StartEventCollector(context.Background(), execs, attempts, failingSink{}, log)

	execs.Publish(events.ExecutionEvent{Result: model.ExecutionResult{ID: "e1"}})
	attempts.Publish(events.AttemptEvent{ExecutionID: "e1", Attempt: 2})
	execs.Close()
	attempts.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.msgs, 2)
	assert.ElementsMatch(t, []string{
		"record execution e1: influx down",
		"record attempt e1/2: influx down",
	}, log.msgs)
}

func TestFactoryRegistersSinks(t *testing.T) {
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)
}
