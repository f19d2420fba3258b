// Package clock provides ports.Clock implementations.
package clock

import (
	"sync"
	"time"
)

// System is the wall clock.
type System struct{}

// Now returns time.Now.
func (System) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (System) Sleep(d time.Duration) { time.Sleep(d) }

// Manual is a clock that only moves when told to. Sleep advances it
// instantly, so retry and timeout paths run without real waiting.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep records d and advances the clock by it.
func (m *Manual) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = append(m.sleeps, d)
	m.now = m.now.Add(d)
}

// Advance moves the clock forward without recording a sleep.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Sleeps returns every duration passed to Sleep.
func (m *Manual) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleeps...)
}
