package model

// CommandType is the normalized command vocabulary understood by adapters.
type CommandType string

const (
	CommandTurnOn   CommandType = "turn_on"
	CommandTurnOff  CommandType = "turn_off"
	CommandSetLevel CommandType = "set_level"
)

// Command is sent to a device port through an adapter.
type Command struct {
	Type  CommandType `json:"type"`
	Value *float64    `json:"value,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
