package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bselee/enviroflow/core/adapter"
	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/events"
	"github.com/bselee/enviroflow/core/metrics"
	"github.com/bselee/enviroflow/core/model"
	"github.com/bselee/enviroflow/core/ratelimit"
	"github.com/bselee/enviroflow/internal/eventbus"
)

type fakeAdapter struct {
	connectErrs []error
	commandErrs []error
	actual      *float64

	connects    int
	commands    []model.Command
	ports       []int
	disconnects []string
}

func (f *fakeAdapter) Connect(_ context.Context, creds credentials.Credentials) (string, error) {
	f.connects++
	if i := f.connects - 1; i < len(f.connectErrs) && f.connectErrs[i] != nil {
		return "", f.connectErrs[i]
	}
	return "session-" + creds["api_key"], nil
}

func (f *fakeAdapter) ControlDevice(_ context.Context, _ string, port int, cmd model.Command) (adapter.ControlResult, error) {
	f.commands = append(f.commands, cmd)
	f.ports = append(f.ports, port)
	if i := len(f.commands) - 1; i < len(f.commandErrs) && f.commandErrs[i] != nil {
		return adapter.ControlResult{}, f.commandErrs[i]
	}
	return adapter.ControlResult{ActualValue: f.actual}, nil
}

func (f *fakeAdapter) Disconnect(_ context.Context, id string) error {
	f.disconnects = append(f.disconnects, id)
	return nil
}

type fakeProvider struct {
	a      *fakeAdapter
	brands map[model.Brand]bool
	calls  int
}

func (p *fakeProvider) Adapter(model.Brand) (adapter.Adapter, error) {
	p.calls++
	return p.a, nil
}

func (p *fakeProvider) IsBrandSupported(b model.Brand) bool {
	p.calls++
	return p.brands[b]
}

type fakeDecrypter struct {
	err   error
	calls int
}

func (d *fakeDecrypter) Decrypt(context.Context, string) (credentials.Credentials, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return credentials.Credentials{"api_key": "k"}, nil
}

type sleepRecorder struct{ waits []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

type recSink struct {
	metrics.NopSink
	execs    []metrics.ExecutionRecord
	attempts []metrics.AttemptRecord
}

func (r *recSink) RecordExecution(rec metrics.ExecutionRecord) error {
	r.execs = append(r.execs, rec)
	return nil
}

func (r *recSink) RecordAttempt(rec metrics.AttemptRecord) error {
	r.attempts = append(r.attempts, rec)
	return nil
}

var now = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type harness struct {
	exec     *Executor
	adapter  *fakeAdapter
	provider *fakeProvider
	decrypt  *fakeDecrypter
	sleeper  *sleepRecorder
	sink     *recSink
	limiter  *ratelimit.Limiter
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	h := &harness{
		adapter: &fakeAdapter{},
		decrypt: &fakeDecrypter{},
		sleeper: &sleepRecorder{},
		sink:    &recSink{},
		limiter: ratelimit.New(ratelimit.WithClock(func() time.Time { return now })),
	}
	h.provider = &fakeProvider{a: h.adapter, brands: map[model.Brand]bool{"mqtt": true}}
	base := []Option{
		WithSleeper(h.sleeper.sleep),
		WithClock(func() time.Time { return now }),
		WithMetrics(h.sink),
		WithIDGenerator(func() string { return "exec-1" }),
	}
	e, err := New(h.limiter, h.provider, h.decrypt, append(base, opts...)...)
	require.NoError(t, err)
	h.exec = e
	return h
}

func onSchedule() model.DeviceSchedule {
	return model.DeviceSchedule{
		ID:           "s1",
		Name:         "lights on",
		ControllerID: "c1",
		DevicePort:   2,
		TriggerType:  model.TriggerTime,
		IsActive:     true,
		Schedule:     model.ScheduleConfig{StartTime: "08:00", Action: model.ActionSetLevel, Level: model.Float(40)},
	}
}

func controller() model.Controller {
	return model.Controller{ID: "c1", Name: "tent", Brand: "mqtt", EncryptedCredentials: "blob"}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, &fakeProvider{}, &fakeDecrypter{})
	assert.Error(t, err)
	_, err = New(ratelimit.New(), nil, &fakeDecrypter{})
	assert.Error(t, err)
	_, err = New(ratelimit.New(), &fakeProvider{}, nil)
	assert.Error(t, err)
}

func TestExecuteSuccess(t *testing.T) {
	h := newHarness(t)
	res := h.exec.Execute(context.Background(), onSchedule(), controller(), nil, now, false)

	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, "exec-1", res.ID)
	assert.Equal(t, "set_level", res.Action)
	require.NotNil(t, res.Value)
	assert.Equal(t, 40.0, *res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Error)
	assert.Equal(t, []int{2}, h.adapter.ports)
	assert.Equal(t, []string{"session-k"}, h.adapter.disconnects)
	assert.Empty(t, h.sleeper.waits)
	require.Len(t, h.sink.execs, 1)
	assert.Equal(t, model.StatusSuccess, h.sink.execs[0].Status)
	assert.Len(t, h.sink.attempts, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(executionsTotal.WithLabelValues("success", "")))
}

func TestExecuteReportsActualValue(t *testing.T) {
	h := newHarness(t)
	h.adapter.actual = model.Float(38)
	res := h.exec.Execute(context.Background(), onSchedule(), controller(), nil, now, false)
	require.NotNil(t, res.Value)
	assert.Equal(t, 38.0, *res.Value)
}

func TestExecuteConnectFailsTwiceThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.adapter.connectErrs = []error{errors.New("timeout"), errors.New("timeout")}

	res := h.exec.Execute(context.Background(), onSchedule(), controller(), nil, now, false)

	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, 3, h.adapter.connects)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sleeper.waits)
	assert.Len(t, h.adapter.commands, 1)
	assert.Len(t, h.adapter.disconnects, 1)
}

func TestExecuteCommandFailureAlwaysDisconnects(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("port busy")
	h.adapter.commandErrs = []error{boom, boom, boom}

	res := h.exec.Execute(context.Background(), onSchedule(), controller(), nil, now, false)

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.KindCommand, res.Kind)
	assert.Contains(t, res.Error, "port busy")
	assert.Equal(t, 3, h.adapter.connects)
	assert.Len(t, h.adapter.disconnects, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sleeper.waits)
}

func TestExecuteConnectionExhausted(t *testing.T) {
	h := newHarness(t)
	refused := errors.New("refused")
	h.adapter.connectErrs = []error{refused, refused, refused}

	res := h.exec.Execute(context.Background(), onSchedule(), controller(), nil, now, false)

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.KindConnection, res.Kind)
	assert.Contains(t, res.Error, "refused")
	assert.Empty(t, h.adapter.commands)
	assert.Empty(t, h.adapter.disconnects)
	assert.Len(t, h.sleeper.waits, 2)
}

func TestExecuteDryRunHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	s := onSchedule()
	s.TriggerType = model.TriggerSunrise
	s.Schedule.DurationMinutes = model.Int(30)
	s.Schedule.StartIntensity = model.Float(0)
	s.Schedule.TargetIntensity = model.Float(100)
	last := now.Add(-15 * time.Minute)
	s.LastExecuted = &last

	res := h.exec.Execute(context.Background(), s, controller(), nil, now, true)

	assert.Equal(t, model.StatusDryRun, res.Status)
	assert.Equal(t, "set_level", res.Action)
	require.NotNil(t, res.Value)
	assert.InDelta(t, 50, *res.Value, 1e-9)
	assert.Zero(t, h.decrypt.calls)
	assert.Zero(t, h.provider.calls)
	assert.Zero(t, h.adapter.connects)

	live := newHarness(t).exec.Execute(context.Background(), s, controller(), nil, now, false)
	assert.Equal(t, res.Action, live.Action)
	assert.Equal(t, *res.Value, *live.Value)
}

func TestExecuteUsesEvaluationInstant(t *testing.T) {
	wall := now.Add(3 * time.Hour)
	h := newHarness(t, WithClock(func() time.Time { return wall }))
	s := onSchedule()
	s.TriggerType = model.TriggerSunset
	s.Schedule.DurationMinutes = model.Int(60)
	s.Schedule.StartIntensity = model.Float(100)
	s.Schedule.TargetIntensity = model.Float(0)
	last := now.Add(-45 * time.Minute)
	s.LastExecuted = &last

	res := h.exec.Execute(context.Background(), s, controller(), nil, now, true)
	assert.True(t, now.Equal(res.Timestamp))
	require.NotNil(t, res.Value)
	assert.InDelta(t, 25, *res.Value, 1e-9)

	res = h.exec.Execute(context.Background(), onSchedule(), controller(), nil, time.Time{}, true)
	assert.True(t, wall.Equal(res.Timestamp))
}

func TestExecuteRateLimited(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < ratelimit.DefaultMax; i++ {
		require.True(t, h.limiter.Allow("c1"))
	}
	res := h.exec.Execute(context.Background(), onSchedule(), controller(), nil, now, false)

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.ActionRateLimited, res.Action)
	assert.Equal(t, model.KindRateLimited, res.Kind)
	assert.Zero(t, h.decrypt.calls)
	assert.Zero(t, h.provider.calls)
}

func TestExecuteReadOnlyBrandSkipped(t *testing.T) {
	h := newHarness(t)
	c := controller()
	c.Brand = model.BrandCSVUpload

	res := h.exec.Execute(context.Background(), onSchedule(), c, nil, now, false)

	assert.Equal(t, model.StatusSkipped, res.Status)
	assert.Equal(t, model.KindReadOnly, res.Kind)
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, h.decrypt.calls)
	assert.Zero(t, h.adapter.connects)
}

func TestExecuteUnsupportedBrand(t *testing.T) {
	h := newHarness(t)
	c := controller()
	c.Brand = "unknown"

	res := h.exec.Execute(context.Background(), onSchedule(), c, nil, now, false)

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.KindUnsupported, res.Kind)
	assert.Zero(t, h.decrypt.calls)
	assert.Zero(t, h.adapter.connects)
}

func TestExecuteDecryptionFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.decrypt.err = errors.New("bad key")

	res := h.exec.Execute(context.Background(), onSchedule(), controller(), nil, now, false)

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.KindDecryption, res.Kind)
	assert.Equal(t, 1, h.decrypt.calls)
	assert.Zero(t, h.adapter.connects)
	assert.Empty(t, h.sleeper.waits)
}

func TestExecuteInvalidLevel(t *testing.T) {
	h := newHarness(t)
	s := onSchedule()
	s.Schedule.Level = model.Float(120)

	res := h.exec.Execute(context.Background(), s, controller(), nil, now, false)

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.KindInvalid, res.Kind)
	assert.Zero(t, h.adapter.connects)
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleeps := 0
	h := newHarness(t, WithSleeper(func(ctx context.Context, d time.Duration) error {
		sleeps++
		cancel()
		return ctx.Err()
	}))
	h.adapter.connectErrs = []error{errors.New("down"), errors.New("down"), errors.New("down")}

	res := h.exec.Execute(ctx, onSchedule(), controller(), nil, now, false)

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, 1, sleeps)
	assert.Equal(t, 1, h.adapter.connects)
	assert.Contains(t, res.Error, "context canceled")
}

func TestExecutePublishesEvents(t *testing.T) {
	execBus := eventbus.NewTyped[events.ExecutionEvent](0)
	attemptBus := eventbus.NewTyped[events.AttemptEvent](0)
	h := newHarness(t, WithExecutionBus(execBus), WithAttemptBus(attemptBus))
	execCh := execBus.Subscribe()
	attemptCh := attemptBus.Subscribe()

	s := onSchedule()
	s.UserID = "u1"
	h.exec.Execute(context.Background(), s, controller(), &model.Room{ID: "r1"}, now, false)

	ev := <-execCh
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "r1", ev.RoomID)
	assert.Equal(t, model.StatusSuccess, ev.Result.Status)

	first := <-attemptCh
	assert.Equal(t, "connect", first.Stage)
	second := <-attemptCh
	assert.Equal(t, "command", second.Stage)
	assert.NoError(t, second.Err)
}

func TestBackoff(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 2*time.Second, h.exec.Backoff(1))
	assert.Equal(t, 4*time.Second, h.exec.Backoff(2))
	assert.Equal(t, 8*time.Second, h.exec.Backoff(3))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, model.KindNone, KindOf(nil))
	assert.Equal(t, model.KindUnsupported, KindOf(adapter.ErrUnsupportedBrand))
	assert.Equal(t, model.KindCommand, KindOf(errors.New("other")))
}
