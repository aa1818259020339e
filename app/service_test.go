package app

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bselee/enviroflow/config"
	"github.com/bselee/enviroflow/core/audit"
	"github.com/bselee/enviroflow/core/engine"
	"github.com/bselee/enviroflow/core/model"
	"github.com/bselee/enviroflow/infra/store"
)

const fixtures = `
controllers:
  - id: c1
    user_id: u1
    name: Hub
    brand: mqtt
    credentials:
      device_id: hub1
      broker: tcp://127.0.0.1:1
schedules:
  - id: lights
    user_id: u1
    controller_id: c1
    device_port: 1
    trigger_type: time
    is_active: true
    schedule:
      days: [1, 2, 3, 4, 5]
      start_time: "08:00"
      action: set_level
      level: 75
  - id: fan
    user_id: u1
    controller_id: c1
    device_port: 2
    trigger_type: time
    is_active: true
    schedule:
      days: [0, 1, 2, 3, 4, 5, 6]
      start_time: "21:00"
      action: "off"
`

func newTestService(t *testing.T, dryRun bool) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Engine:      config.EngineConfig{DryRun: dryRun, Timezone: "UTC"},
		Audit:       audit.Config{Backend: audit.BackendJSONL, Path: filepath.Join(dir, "audit.jsonl")},
		Store:       config.StoreConfig{Path: filepath.Join(dir, "ef.db")},
		Credentials: config.CredentialsConfig{MasterKey: base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	f, err := store.LoadFixtures(strings.NewReader(fixtures))
	require.NoError(t, err)
	_, err = svc.Store.Seed(context.Background(), f, svc.Box)
	require.NoError(t, err)
	return svc
}

func TestServiceDryRunTick(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 8, 0, 20, 0, time.UTC)

	rep, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Evaluated)
	assert.Equal(t, 1, rep.Fired)
	require.Len(t, rep.Results, 1)
	res := rep.Results[0]
	assert.Equal(t, model.StatusDryRun, res.Status)
	require.NotNil(t, res.Value)
	assert.Equal(t, 75.0, *res.Value)

	recs, err := svc.Audit().Query(ctx, audit.Query{ScheduleID: "lights"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0].UserID)

	tgt, err := svc.Store.Target(ctx, "lights")
	require.NoError(t, err)
	assert.Nil(t, tgt.Schedule.LastExecuted)
}

func TestServiceLiveTickRecordsFailure(t *testing.T) {
	svc := newTestService(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Date(2024, 6, 3, 21, 0, 5, 0, time.UTC)

	rep, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, model.StatusFailed, rep.Results[0].Status)
	assert.Equal(t, model.KindConnection, rep.Results[0].Kind)

	tgt, err := svc.Store.Target(ctx, "fan")
	require.NoError(t, err)
	require.NotNil(t, tgt.Schedule.LastExecuted)
	assert.True(t, now.Equal(*tgt.Schedule.LastExecuted), "last_executed %s", tgt.Schedule.LastExecuted)
	assert.Equal(t, 1, tgt.Schedule.ExecutionCount)
	assert.NotEmpty(t, tgt.Schedule.LastError)
}

func TestServicePreviewPersistsNothing(t *testing.T) {
	svc := newTestService(t, false)
	ctx := context.Background()
	rep, err := svc.Preview(ctx, time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, model.StatusDryRun, rep.Results[0].Status)

	recs, err := svc.Audit().Query(ctx, audit.Query{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

type countingTicker struct {
	mu    sync.Mutex
	ticks int
	fired chan struct{}
}

func (c *countingTicker) Tick(context.Context, time.Time) (engine.TickReport, error) {
	c.mu.Lock()
	c.ticks++
	c.mu.Unlock()
	select {
	case c.fired <- struct{}{}:
	default:
	}
	return engine.TickReport{}, nil
}

func TestSchedulerFires(t *testing.T) {
	ct := &countingTicker{fired: make(chan struct{}, 1)}
	s, err := NewScheduler(time.Second, ct, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	select {
	case <-ct.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never ticked")
	}
	cancel()
	s.Stop()
}

func TestSchedulerRejectsShortInterval(t *testing.T) {
	_, err := NewScheduler(500*time.Millisecond, &countingTicker{}, nil)
	assert.Error(t, err)
}
