// Package command resolves the device command a schedule should send.
package command

import (
	"fmt"
	"time"

	"github.com/bselee/enviroflow/core/curve"
	"github.com/bselee/enviroflow/core/model"
)

// Build returns the normalized command for s at now.
//
// Solar schedules carrying a full ramp send a set_level whose value follows
// the ramp curve. The ramp origin is the last execution, or now when the
// schedule never ran. It is not anchored to the solar event itself: a first
// run sends the start intensity and a run whose last execution is older than
// the ramp duration sends the target intensity.
func Build(s model.DeviceSchedule, now time.Time) (model.Command, error) {
	cfg := s.Schedule
	if s.TriggerType.IsSolar() && cfg.HasRamp() {
		origin := now
		if s.LastExecuted != nil {
			origin = *s.LastExecuted
		}
		duration := time.Duration(*cfg.DurationMinutes) * time.Minute
		level := curve.Level(*cfg.StartIntensity, *cfg.TargetIntensity, now.Sub(origin), duration, rampCurve(cfg.Curve))
		return model.Command{Type: model.CommandSetLevel, Value: model.Float(level)}, nil
	}
	switch cfg.Action {
	case model.ActionOn:
		return model.Command{Type: model.CommandTurnOn}, nil
	case model.ActionOff:
		return model.Command{Type: model.CommandTurnOff}, nil
	case model.ActionSetLevel:
		if cfg.Level == nil {
			return model.Command{}, fmt.Errorf("set_level requires a level")
		}
		if l := *cfg.Level; l < 0 || l > 100 {
			return model.Command{}, fmt.Errorf("level %v outside [0,100]", l)
		}
		return model.Command{Type: model.CommandSetLevel, Value: model.Float(*cfg.Level)}, nil
	default:
		return model.Command{}, fmt.Errorf("unknown action %q", cfg.Action)
	}
}

func rampCurve(c model.Curve) model.Curve {
	if c == "" {
		return model.CurveLinear
	}
	return c
}
