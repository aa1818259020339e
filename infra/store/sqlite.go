// Package store keeps schedules, controllers and rooms in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bselee/enviroflow/core/engine"
	"github.com/bselee/enviroflow/core/model"
)

// ErrNotFound is returned when a schedule does not exist.
var ErrNotFound = errors.New("not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
        id TEXT PRIMARY KEY,
        name TEXT,
        latitude REAL,
        longitude REAL,
        timezone TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS controllers (
        id TEXT PRIMARY KEY,
        user_id TEXT,
        name TEXT,
        brand TEXT NOT NULL,
        encrypted_credentials TEXT,
        status TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS device_schedules (
        id TEXT PRIMARY KEY,
        name TEXT,
        user_id TEXT,
        controller_id TEXT NOT NULL,
        room_id TEXT,
        device_port INTEGER NOT NULL,
        trigger_type TEXT NOT NULL,
        schedule TEXT NOT NULL,
        is_active INTEGER NOT NULL DEFAULT 1,
        last_executed INTEGER,
        execution_count INTEGER NOT NULL DEFAULT 0,
        last_error TEXT
    )`,
}

// SQLiteStore implements engine.Source and engine.MetadataUpdater.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ engine.Source          = (*SQLiteStore)(nil)
	_ engine.MetadataUpdater = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// UpsertRoom inserts or replaces a room.
func (s *SQLiteStore) UpsertRoom(ctx context.Context, r model.Room) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO rooms (id, name, latitude, longitude, timezone)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            latitude = excluded.latitude,
            longitude = excluded.longitude,
            timezone = excluded.timezone`,
		r.ID, r.Name, nullFloat(r.Latitude), nullFloat(r.Longitude), r.Timezone)
	return err
}

// UpsertController inserts or replaces a controller.
func (s *SQLiteStore) UpsertController(ctx context.Context, c model.Controller) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO controllers (id, user_id, name, brand, encrypted_credentials, status)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            user_id = excluded.user_id,
            name = excluded.name,
            brand = excluded.brand,
            encrypted_credentials = excluded.encrypted_credentials,
            status = excluded.status`,
		c.ID, c.UserID, c.Name, string(c.Brand), c.EncryptedCredentials, c.Status)
	return err
}

// UpsertSchedule validates and stores a schedule, including its execution metadata.
func (s *SQLiteStore) UpsertSchedule(ctx context.Context, d model.DeviceSchedule) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("schedule %s: %w", d.ID, err)
	}
	cfg, err := json.Marshal(d.Schedule)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO device_schedules
        (id, name, user_id, controller_id, room_id, device_port, trigger_type, schedule, is_active, last_executed, execution_count, last_error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            user_id = excluded.user_id,
            controller_id = excluded.controller_id,
            room_id = excluded.room_id,
            device_port = excluded.device_port,
            trigger_type = excluded.trigger_type,
            schedule = excluded.schedule,
            is_active = excluded.is_active,
            last_executed = excluded.last_executed,
            execution_count = excluded.execution_count,
            last_error = excluded.last_error`,
		d.ID, d.Name, d.UserID, d.ControllerID, d.RoomID, d.DevicePort, string(d.TriggerType), string(cfg),
		d.IsActive, nullTime(d.LastExecuted), d.ExecutionCount, nullString(d.LastError))
	return err
}

const selectTargets = `SELECT
    s.id, s.name, s.user_id, s.controller_id, s.room_id, s.device_port, s.trigger_type, s.schedule,
    s.is_active, s.last_executed, s.execution_count, s.last_error,
    c.user_id, c.name, c.brand, c.encrypted_credentials, c.status,
    r.id, r.name, r.latitude, r.longitude, r.timezone
FROM device_schedules s
JOIN controllers c ON c.id = s.controller_id
LEFT JOIN rooms r ON r.id = s.room_id`

// ActiveSchedules lists active schedules whose controller exists, ordered by id.
func (s *SQLiteStore) ActiveSchedules(ctx context.Context) ([]engine.Target, error) {
	rows, err := s.db.QueryContext(ctx, selectTargets+` WHERE s.is_active = 1 ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []engine.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Target loads one schedule with its controller and room.
func (s *SQLiteStore) Target(ctx context.Context, scheduleID string) (engine.Target, error) {
	row := s.db.QueryRowContext(ctx, selectTargets+` WHERE s.id = ?`, scheduleID)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Target{}, fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
	}
	return t, err
}

// UpdateScheduleMetadata records an execution: last_executed is set to the
// result timestamp, execution_count is incremented and last_error is set for
// failures and cleared otherwise.
func (s *SQLiteStore) UpdateScheduleMetadata(ctx context.Context, scheduleID string, res model.ExecutionResult) error {
	var lastErr sql.NullString
	if res.Status == model.StatusFailed {
		lastErr = sql.NullString{String: res.Error, Valid: true}
	}
	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	r, err := s.db.ExecContext(ctx, `UPDATE device_schedules
        SET last_executed = ?, execution_count = execution_count + 1, last_error = ?
        WHERE id = ?`, ts.UnixMilli(), lastErr, scheduleID)
	if err != nil {
		return err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(sc scanner) (engine.Target, error) {
	var (
		t                    engine.Target
		trigger, cfg         string
		lastExec             sql.NullInt64
		roomRef, lastErr     sql.NullString
		sName, sUser, brand  sql.NullString
		cUser, cName, cCreds sql.NullString
		cStatus              sql.NullString
		rID, rName, rTZ      sql.NullString
		rLat, rLon           sql.NullFloat64
	)
	d := &t.Schedule
	if err := sc.Scan(
		&d.ID, &sName, &sUser, &d.ControllerID, &roomRef, &d.DevicePort, &trigger, &cfg,
		&d.IsActive, &lastExec, &d.ExecutionCount, &lastErr,
		&cUser, &cName, &brand, &cCreds, &cStatus,
		&rID, &rName, &rLat, &rLon, &rTZ,
	); err != nil {
		return engine.Target{}, err
	}
	d.Name, d.UserID, d.RoomID = sName.String, sUser.String, roomRef.String
	d.TriggerType = model.TriggerType(trigger)
	d.LastError = lastErr.String
	if lastExec.Valid {
		ts := time.UnixMilli(lastExec.Int64).UTC()
		d.LastExecuted = &ts
	}
	if err := json.Unmarshal([]byte(cfg), &d.Schedule); err != nil {
		return engine.Target{}, fmt.Errorf("decode schedule %s: %w", d.ID, err)
	}
	t.Controller = model.Controller{
		ID:                   d.ControllerID,
		UserID:               cUser.String,
		Name:                 cName.String,
		Brand:                model.Brand(brand.String),
		EncryptedCredentials: cCreds.String,
		Status:               cStatus.String,
	}
	if rID.Valid {
		t.Room = &model.Room{ID: rID.String, Name: rName.String, Timezone: rTZ.String}
		if rLat.Valid {
			t.Room.Latitude = model.Float(rLat.Float64)
		}
		if rLon.Valid {
			t.Room.Longitude = model.Float(rLon.Float64)
		}
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
