package model

import "time"

// ExecutionStatus is the terminal outcome of one execution.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailed  ExecutionStatus = "failed"
	StatusSkipped ExecutionStatus = "skipped"
	StatusDryRun  ExecutionStatus = "dry_run"
)

// ActionRateLimited is reported as the action of a rate limited execution.
const ActionRateLimited = "rate_limited"

// ErrorKind classifies failures for metrics and alerting.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindRateLimited ErrorKind = "rate_limited"
	KindUnsupported ErrorKind = "unsupported"
	KindDecryption  ErrorKind = "decryption"
	KindConnection  ErrorKind = "connection"
	KindCommand     ErrorKind = "command"
	KindReadOnly    ErrorKind = "read_only"
	KindInvalid     ErrorKind = "invalid_schedule"
)

// ExecutionResult is produced fresh for every execution attempt.
type ExecutionResult struct {
	ID             string          `json:"id"`
	ScheduleID     string          `json:"schedule_id"`
	ScheduleName   string          `json:"schedule_name"`
	ControllerID   string          `json:"controller_id"`
	ControllerName string          `json:"controller_name"`
	Status         ExecutionStatus `json:"status"`
	Action         string          `json:"action"`
	Value          *float64        `json:"value,omitempty"`
	Error          string          `json:"error,omitempty"`
	Kind           ErrorKind       `json:"kind,omitempty"`
	Attempts       int             `json:"attempts"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Succeeded reports whether the command reached the device.
func (r ExecutionResult) Succeeded() bool { return r.Status == StatusSuccess }
