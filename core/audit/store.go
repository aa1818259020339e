// Package audit persists one record per schedule execution attempt.
package audit

import (
	"context"
	"time"

	"github.com/bselee/enviroflow/core/model"
)

// Record captures one execution result with its ownership context.
type Record struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	UserID    string                `json:"user_id"`
	RoomID    string                `json:"room_id,omitempty"`
	Result    model.ExecutionResult `json:"result"`
}

// Query defines filters for retrieving records. Zero values match everything.
type Query struct {
	Start        time.Time
	End          time.Time
	ScheduleID   string
	ControllerID string
	Status       model.ExecutionStatus
}

// Matches reports whether r passes every filter of q.
func (q Query) Matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.ScheduleID != "" && r.Result.ScheduleID != q.ScheduleID {
		return false
	}
	if q.ControllerID != "" && r.Result.ControllerID != q.ControllerID {
		return false
	}
	if q.Status != "" && r.Result.Status != q.Status {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
