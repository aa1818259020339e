package monitoring

import "time"

// Tag keys attached to captured errors.
const (
	TagScheduleID   = "schedule_id"
	TagControllerID = "controller_id"
	TagBrand        = "brand"
	TagStage        = "stage"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil || current == nil {
		return
	}
	current.CaptureException(err, tags)
}

// Recover captures panics in goroutines.
func Recover() {
	if current != nil {
		current.Recover()
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	if current != nil {
		current.Flush(d)
	}
}

// ScheduleTags builds the standard tag set for a schedule execution.
// Empty values are omitted.
func ScheduleTags(scheduleID, controllerID, brand string) map[string]string {
	tags := make(map[string]string, 3)
	if scheduleID != "" {
		tags[TagScheduleID] = scheduleID
	}
	if controllerID != "" {
		tags[TagControllerID] = controllerID
	}
	if brand != "" {
		tags[TagBrand] = brand
	}
	return tags
}
