package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerType selects the condition that fires a schedule.
type TriggerType string

const (
	TriggerTime    TriggerType = "time"
	TriggerSunrise TriggerType = "sunrise"
	TriggerSunset  TriggerType = "sunset"
	TriggerCron    TriggerType = "cron"
)

// IsSolar reports whether the trigger is tied to an astronomical event.
func (t TriggerType) IsSolar() bool {
	return t == TriggerSunrise || t == TriggerSunset
}

// Action is the configured device action of a schedule.
type Action string

const (
	ActionOn       Action = "on"
	ActionOff      Action = "off"
	ActionSetLevel Action = "set_level"
)

// Curve names the interpolation law of a dimming ramp.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveSigmoid     Curve = "sigmoid"
	CurveExponential Curve = "exponential"
	CurveLogarithmic Curve = "logarithmic"
)

// ScheduleConfig holds the user supplied parameters of a schedule.
// Pointer fields are optional; a nil ramp field disables the ramp.
type ScheduleConfig struct {
	Days            []time.Weekday `json:"days,omitempty" yaml:"days"`
	StartTime       string         `json:"start_time,omitempty" yaml:"start_time"`
	EndTime         string         `json:"end_time,omitempty" yaml:"end_time"`
	Action          Action         `json:"action" yaml:"action"`
	Level           *float64       `json:"level,omitempty" yaml:"level"`
	Cron            string         `json:"cron,omitempty" yaml:"cron"`
	OffsetMinutes   int            `json:"offset_minutes,omitempty" yaml:"offset_minutes"`
	DurationMinutes *int           `json:"duration_minutes,omitempty" yaml:"duration_minutes"`
	StartIntensity  *float64       `json:"start_intensity,omitempty" yaml:"start_intensity"`
	TargetIntensity *float64       `json:"target_intensity,omitempty" yaml:"target_intensity"`
	Curve           Curve          `json:"curve,omitempty" yaml:"curve"`
}

// HasRamp reports whether all ramp fields are present.
func (c ScheduleConfig) HasRamp() bool {
	return c.DurationMinutes != nil && c.StartIntensity != nil && c.TargetIntensity != nil
}

// DeviceSchedule maps a time or astronomical condition to a device command.
type DeviceSchedule struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	UserID         string         `json:"user_id" yaml:"user_id"`
	ControllerID   string         `json:"controller_id" yaml:"controller_id"`
	RoomID         string         `json:"room_id,omitempty" yaml:"room_id"`
	DevicePort     int            `json:"device_port" yaml:"device_port"`
	TriggerType    TriggerType    `json:"trigger_type" yaml:"trigger_type"`
	Schedule       ScheduleConfig `json:"schedule" yaml:"schedule"`
	IsActive       bool           `json:"is_active" yaml:"is_active"`
	LastExecuted   *time.Time     `json:"last_executed,omitempty" yaml:"last_executed"`
	ExecutionCount int            `json:"execution_count" yaml:"execution_count"`
	LastError      string         `json:"last_error,omitempty" yaml:"last_error"`
}

// Validate checks the structural invariants of a schedule.
func (s DeviceSchedule) Validate() error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if s.ControllerID == "" {
		errs = append(errs, errors.New("controller_id is required"))
	}
	if s.DevicePort <= 0 {
		errs = append(errs, fmt.Errorf("device_port must be positive, got %d", s.DevicePort))
	}
	switch s.TriggerType {
	case TriggerTime:
		if _, _, err := ParseTimeOfDay(s.Schedule.StartTime); err != nil {
			errs = append(errs, fmt.Errorf("start_time: %w", err))
		}
	case TriggerSunrise, TriggerSunset, TriggerCron:
	default:
		errs = append(errs, fmt.Errorf("unknown trigger_type %q", s.TriggerType))
	}
	rampOnly := s.TriggerType.IsSolar() && s.Schedule.HasRamp() && s.Schedule.Action == ""
	switch s.Schedule.Action {
	case ActionOn, ActionOff:
	case ActionSetLevel:
		if s.Schedule.Level == nil {
			errs = append(errs, errors.New("set_level requires level"))
		} else if l := *s.Schedule.Level; l < 0 || l > 100 {
			errs = append(errs, fmt.Errorf("level must be within [0,100], got %v", l))
		}
	default:
		if !rampOnly {
			errs = append(errs, fmt.Errorf("unknown action %q", s.Schedule.Action))
		}
	}
	switch s.Schedule.Curve {
	case "", CurveLinear, CurveSigmoid, CurveExponential, CurveLogarithmic:
	default:
		errs = append(errs, fmt.Errorf("unknown curve %q", s.Schedule.Curve))
	}
	for name, v := range map[string]*float64{"start_intensity": s.Schedule.StartIntensity, "target_intensity": s.Schedule.TargetIntensity} {
		if v != nil && (*v < 0 || *v > 100) {
			errs = append(errs, fmt.Errorf("%s must be within [0,100], got %v", name, *v))
		}
	}
	for _, d := range s.Schedule.Days {
		if d < time.Sunday || d > time.Saturday {
			errs = append(errs, fmt.Errorf("invalid weekday %d", d))
		}
	}
	return errors.Join(errs...)
}

// ParseTimeOfDay parses "HH:MM" (or "HH:MM:SS") into hour and minute.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
