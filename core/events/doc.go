// Package events defines the execution related events emitted on the event bus.
//
// Available event types:
//   - ExecutionEvent: a schedule execution finished with a terminal status
//   - AttemptEvent: one connect or command attempt against a controller
package events
