// Package ratelimit caps commands per controller within fixed windows.
//
// State is process local: it is lost on restart and never shared between
// processes. Under-limiting right after a restart is acceptable.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultMax             = 10
	DefaultWindow          = time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter is a fixed-window counter keyed by controller id.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMax sets the number of commands allowed per window.
func WithMax(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.max = n
		}
	}
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a Limiter allowing DefaultMax commands per DefaultWindow.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		max:     DefaultMax,
		window:  DefaultWindow,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow records one command for controllerID and reports whether it fits
// in the current window. Rejected calls are not counted.
func (l *Limiter) Allow(controllerID string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[controllerID]
	if !ok || now.Sub(e.windowStart) >= l.window {
		l.entries[controllerID] = &entry{count: 1, windowStart: now}
		return true
	}
	if e.count >= l.max {
		return false
	}
	e.count++
	return true
}

// Remaining returns how many commands controllerID may still send in the
// current window.
func (l *Limiter) Remaining(controllerID string) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[controllerID]
	if !ok || now.Sub(e.windowStart) >= l.window {
		return l.max
	}
	return l.max - e.count
}

// Sweep drops entries whose window has elapsed and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, e := range l.entries {
		if now.Sub(e.windowStart) >= l.window {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps stale windows every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Len returns the number of tracked controllers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset forgets all windows.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.entries = make(map[string]*entry)
	l.mu.Unlock()
}

// NewCollector exposes the number of tracked controllers as a gauge.
func NewCollector(l *Limiter) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "rate_limiter_tracked_controllers",
		Help: "Number of controllers with an open rate-limit window",
	}, func() float64 { return float64(l.Len()) })
}
