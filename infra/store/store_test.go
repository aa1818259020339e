package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bselee/enviroflow/core/credentials"
	"github.com/bselee/enviroflow/core/model"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := NewSQLiteStore("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const fixtureYAML = `
rooms:
  - id: r1
    name: Veg tent
    latitude: 48.85
    longitude: 2.35
    timezone: Europe/Paris
controllers:
  - id: c1
    user_id: u1
    name: Hub
    brand: mqtt
    credentials:
      device_id: hub1
  - id: c2
    user_id: u1
    name: Legacy
    brand: csv_upload
schedules:
  - id: s1
    name: Morning
    user_id: u1
    controller_id: c1
    room_id: r1
    device_port: 1
    trigger_type: time
    is_active: true
    schedule:
      days: [1, 2, 3, 4, 5]
      start_time: "08:00"
      action: "on"
  - id: s2
    name: Dawn
    user_id: u1
    controller_id: c1
    room_id: r1
    device_port: 2
    trigger_type: sunrise
    is_active: true
    schedule:
      offset_minutes: -15
      duration_minutes: 30
      start_intensity: 0
      target_intensity: 80
      curve: sigmoid
  - id: s3
    controller_id: c2
    device_port: 1
    trigger_type: time
    is_active: false
    schedule:
      start_time: "09:00"
      action: "off"
`

type fakeEncrypter struct{ calls int }

func (f *fakeEncrypter) Encrypt(c credentials.Credentials) (string, error) {
	f.calls++
	return "sealed:" + c["device_id"], nil
}

func seeded(t *testing.T) *SQLiteStore {
	t.Helper()
	s := openStore(t)
	f, err := LoadFixtures(strings.NewReader(fixtureYAML))
	require.NoError(t, err)
	enc := &fakeEncrypter{}
	rep, err := s.Seed(context.Background(), f, enc)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Rooms: 1, Controllers: 2, Schedules: 3}, rep)
	assert.Equal(t, 1, enc.calls)
	return s
}

func TestSeedAndActiveSchedules(t *testing.T) {
	s := seeded(t)
	targets, err := s.ActiveSchedules(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)

	morning := targets[0]
	assert.Equal(t, "s1", morning.Schedule.ID)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, morning.Schedule.Schedule.Days)
	assert.Equal(t, model.ActionOn, morning.Schedule.Schedule.Action)
	assert.Equal(t, "sealed:hub1", morning.Controller.EncryptedCredentials)
	assert.Equal(t, model.Brand("mqtt"), morning.Controller.Brand)
	require.NotNil(t, morning.Room)
	assert.True(t, morning.Room.HasLocation())
	assert.Equal(t, "Europe/Paris", morning.Room.Timezone)
	assert.Nil(t, morning.Schedule.LastExecuted)

	dawn := targets[1]
	assert.Equal(t, model.TriggerSunrise, dawn.Schedule.TriggerType)
	assert.True(t, dawn.Schedule.Schedule.HasRamp())
	assert.Equal(t, -15, dawn.Schedule.Schedule.OffsetMinutes)
	assert.Equal(t, model.CurveSigmoid, dawn.Schedule.Schedule.Curve)
}

func TestUpdateScheduleMetadata(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpdateScheduleMetadata(ctx, "s1", model.ExecutionResult{Status: model.StatusFailed, Error: "connection failed", Timestamp: ts}))
	tgt, err := s.Target(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, tgt.Schedule.LastExecuted)
	assert.True(t, ts.Equal(*tgt.Schedule.LastExecuted))
	assert.Equal(t, 1, tgt.Schedule.ExecutionCount)
	assert.Equal(t, "connection failed", tgt.Schedule.LastError)

	require.NoError(t, s.UpdateScheduleMetadata(ctx, "s1", model.ExecutionResult{Status: model.StatusSuccess, Timestamp: ts.Add(time.Minute)}))
	tgt, err = s.Target(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, tgt.Schedule.ExecutionCount)
	assert.Empty(t, tgt.Schedule.LastError)

	err = s.UpdateScheduleMetadata(ctx, "missing", model.ExecutionResult{Status: model.StatusSuccess})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTargetNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Target(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertScheduleValidates(t *testing.T) {
	s := openStore(t)
	err := s.UpsertSchedule(context.Background(), model.DeviceSchedule{ID: "bad", ControllerID: "c", TriggerType: model.TriggerTime})
	assert.Error(t, err)
}

func TestSeedRequiresEncrypterForPlainCredentials(t *testing.T) {
	s := openStore(t)
	f, err := LoadFixtures(strings.NewReader(fixtureYAML))
	require.NoError(t, err)
	_, err = s.Seed(context.Background(), f, nil)
	assert.ErrorContains(t, err, "encryption key")
}

func TestLoadFixturesRejectsUnknownFields(t *testing.T) {
	_, err := LoadFixtures(strings.NewReader("rooms:\n  - id: r1\n    colour: red\n"))
	assert.Error(t, err)

	f, err := LoadFixtures(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Schedules)
}
