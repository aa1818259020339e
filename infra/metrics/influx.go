package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/infra/logger"
)

// InfluxSink writes execution points to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordExecution writes one schedule_execution point.
func (s *InfluxSink) RecordExecution(rec coremetrics.ExecutionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_execution").
		AddTag("schedule_id", rec.ScheduleID).
		AddTag("controller_id", rec.ControllerID).
		AddTag("brand", string(rec.Brand)).
		AddTag("status", string(rec.Status)).
		AddTag("action", rec.Action)
	if rec.Kind != "" {
		p = p.AddTag("kind", string(rec.Kind))
	}
	p = p.AddField("attempts", rec.Attempts).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000))
	if rec.Value != nil {
		p = p.AddField("value", round3(*rec.Value))
	}
	p = p.SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAttempt writes one adapter_attempt point.
func (s *InfluxSink) RecordAttempt(rec coremetrics.AttemptRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("adapter_attempt").
		AddTag("controller_id", rec.ControllerID).
		AddTag("brand", string(rec.Brand)).
		AddTag("stage", rec.Stage).
		AddTag("ok", strconv.FormatBool(rec.Err == "")).
		AddField("attempt", rec.Attempt).
		AddField("latency_ms", round3(rec.Latency.Seconds()*1000))
	if rec.Err != "" {
		p = p.AddField("error", rec.Err)
	}
	p = p.SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTick writes a tick summary.
func (s *InfluxSink) RecordTick(rec coremetrics.TickRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_tick").
		AddField("evaluated", rec.Evaluated).
		AddField("fired", rec.Fired).
		AddField("duration_ms", round3(rec.Duration.Seconds()*1000)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
