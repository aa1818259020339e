// Package trigger decides whether a schedule fires at a given instant.
//
// The matcher is a pure predicate re-evaluated every tick. Apart from the
// schedule's last execution timestamp it keeps no state, so a tick missed
// while the driver was down never fires retroactively.
package trigger

import (
	"time"

	"github.com/bselee/enviroflow/core/logger"
	"github.com/bselee/enviroflow/core/model"
	"github.com/bselee/enviroflow/core/solar"
)

// IdempotencyWindow suppresses a second fire within the same evaluation minute.
const IdempotencyWindow = 60 * time.Second

// Matcher evaluates trigger conditions.
type Matcher struct {
	solar    solar.Calculator
	fallback *time.Location
	log      logger.Logger
}

// Option customizes a Matcher.
type Option func(*Matcher)

// WithFallbackLocation sets the timezone used for time triggers when the
// schedule has no room timezone. By default the location of now is used.
func WithFallbackLocation(loc *time.Location) Option {
	return func(m *Matcher) { m.fallback = loc }
}

// WithLogger attaches a logger used for skipped solar evaluations.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMatcher returns a Matcher using calc for solar events.
// A nil calc defaults to solar.Astronomical.
func NewMatcher(calc solar.Calculator, opts ...Option) *Matcher {
	if calc == nil {
		calc = solar.Astronomical{}
	}
	m := &Matcher{solar: calc, log: logger.NopLogger{}}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ShouldExecute reports whether s fires at now. room may be nil.
func (m *Matcher) ShouldExecute(s model.DeviceSchedule, room *model.Room, now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.LastExecuted != nil {
		if d := now.Sub(*s.LastExecuted); d > -IdempotencyWindow && d < IdempotencyWindow {
			return false
		}
	}
	switch s.TriggerType {
	case model.TriggerTime:
		return m.matchTime(s, room, now)
	case model.TriggerSunrise:
		return m.matchSolar(s, room, now, solar.Sunrise)
	case model.TriggerSunset:
		return m.matchSolar(s, room, now, solar.Sunset)
	case model.TriggerCron:
		// Cron expressions are not evaluated.
		return false
	default:
		return false
	}
}

func (m *Matcher) matchTime(s model.DeviceSchedule, room *model.Room, now time.Time) bool {
	fallback := m.fallback
	if fallback == nil {
		fallback = now.Location()
	}
	local := now.In(room.Location(fallback))
	if !containsDay(s.Schedule.Days, local.Weekday()) {
		return false
	}
	hour, minute, err := model.ParseTimeOfDay(s.Schedule.StartTime)
	if err != nil {
		return false
	}
	return local.Hour() == hour && local.Minute() == minute
}

func (m *Matcher) matchSolar(s model.DeviceSchedule, room *model.Room, now time.Time, ev solar.Event) bool {
	if !room.HasLocation() {
		return false
	}
	at, err := m.solar.EventTime(ev, now, *room.Latitude, *room.Longitude, room.Timezone)
	if err != nil {
		m.log.Debugf("schedule %s: %s unavailable: %v", s.ID, ev, err)
		return false
	}
	at = at.Add(time.Duration(s.Schedule.OffsetMinutes) * time.Minute)
	local := now.In(at.Location())
	return local.Hour() == at.Hour() && local.Minute() == at.Minute()
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}
