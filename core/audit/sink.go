package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bselee/enviroflow/core/model"
)

// Sink writes one audit record per execution attempt.
type Sink struct {
	store Store
	newID func() string
}

// NewSink wraps store.
func NewSink(store Store) *Sink {
	return &Sink{store: store, newID: uuid.NewString}
}

// LogScheduleExecution appends the result. The record reuses the execution
// id when the result carries one.
func (s *Sink) LogScheduleExecution(ctx context.Context, res model.ExecutionResult, userID, roomID string) error {
	id := res.ID
	if id == "" {
		id = s.newID()
	}
	rec := Record{
		ID:        id,
		Timestamp: res.Timestamp,
		UserID:    userID,
		RoomID:    roomID,
		Result:    res,
	}
	if err := s.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("audit %s: %w", res.ScheduleID, err)
	}
	return nil
}

// Query forwards to the underlying store.
func (s *Sink) Query(ctx context.Context, q Query) ([]Record, error) {
	return s.store.Query(ctx, q)
}

// Close closes the underlying store.
func (s *Sink) Close() error { return s.store.Close() }
