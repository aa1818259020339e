package solar

import (
	"errors"
	"fmt"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Event selects the astronomical event to compute.
type Event int

const (
	Sunrise Event = iota
	Sunset
)

func (e Event) String() string {
	switch e {
	case Sunrise:
		return "sunrise"
	case Sunset:
		return "sunset"
	default:
		return "unknown"
	}
}

// ErrNoEvent is returned when the sun does not rise or set on the date,
// which happens during polar day and polar night.
var ErrNoEvent = errors.New("solar: no event on this date")

// Calculator returns the local time of a solar event on the calendar date of
// ref in the given timezone.
type Calculator interface {
	EventTime(ev Event, ref time.Time, lat, lon float64, timezone string) (time.Time, error)
}

// Astronomical implements Calculator with the NOAA based go-sunrise algorithm.
type Astronomical struct{}

// EventTime computes the event for the local date of ref.
func (Astronomical) EventTime(ev Event, ref time.Time, lat, lon float64, timezone string) (time.Time, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	local := ref.In(loc)
	rise, set := sunrise.SunriseSunset(lat, lon, local.Year(), local.Month(), local.Day())
	var t time.Time
	switch ev {
	case Sunrise:
		t = rise
	case Sunset:
		t = set
	default:
		return time.Time{}, fmt.Errorf("solar: unknown event %d", ev)
	}
	if t.IsZero() {
		return time.Time{}, ErrNoEvent
	}
	return t.In(loc), nil
}

// Sunrise is a convenience wrapper around EventTime.
func (a Astronomical) Sunrise(ref time.Time, lat, lon float64, timezone string) (time.Time, error) {
	return a.EventTime(Sunrise, ref, lat, lon, timezone)
}

// Sunset is a convenience wrapper around EventTime.
func (a Astronomical) Sunset(ref time.Time, lat, lon float64, timezone string) (time.Time, error) {
	return a.EventTime(Sunset, ref, lat, lon, timezone)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("solar: load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Fixed always returns the configured local clock time on the date of ref.
// It is useful for previews and tests where deterministic events are needed.
type Fixed struct {
	Hour, Minute int
}

// EventTime returns Hour:Minute on the local date of ref.
func (f Fixed) EventTime(_ Event, ref time.Time, _, _ float64, timezone string) (time.Time, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	local := ref.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), f.Hour, f.Minute, 0, 0, loc), nil
}
