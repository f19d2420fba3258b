package app

import (
	"time"

	"github.com/bft-labs/serialship/internal/ports"
)

// backoff implements the linear retry delay min(max, base*consecutive).
// It is deterministic; all sleeping goes through the injected clock.
type backoff struct {
	base        time.Duration
	max         time.Duration
	consecutive int
	clock       ports.Clock
}

// newBackoff creates a backoff with the given base step and cap.
func newBackoff(base, max time.Duration, clock ports.Clock) *backoff {
	return &backoff{base: base, max: max, clock: clock}
}

// Fail records a consecutive failure.
func (b *backoff) Fail() {
	b.consecutive++
}

// Sleep sleeps for the current delay.
func (b *backoff) Sleep() {
	if d := b.Current(); d > 0 {
		b.clock.Sleep(d)
	}
}

// Reset clears the failure count after a success.
func (b *backoff) Reset() {
	b.consecutive = 0
}

// Current returns the delay for the current failure count.
func (b *backoff) Current() time.Duration {
	d := b.base * time.Duration(b.consecutive)
	if d > b.max {
		d = b.max
	}
	return d
}

// Consecutive returns the number of failures since the last Reset.
func (b *backoff) Consecutive() int {
	return b.consecutive
}
