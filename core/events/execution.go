package events

import (
	"time"

	"github.com/bselee/enviroflow/core/model"
)

// ExecutionEvent is published once per schedule execution.
type ExecutionEvent struct {
	Result  model.ExecutionResult
	UserID  string
	RoomID  string
	Brand   model.Brand
	Latency time.Duration
}

// AttemptEvent is published for each network attempt inside the retry loop.
// Stage is "connect" or "command".
type AttemptEvent struct {
	ExecutionID  string
	ScheduleID   string
	ControllerID string
	Brand        model.Brand
	Attempt      int
	Stage        string
	Err          error
	Latency      time.Duration
}
