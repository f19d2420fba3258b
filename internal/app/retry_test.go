package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bft-labs/serialship/internal/adapters/clock"
)

func TestBackoff_LinearWithCap(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	b := newBackoff(500*time.Millisecond, 5*time.Second, clk)

	assert.Zero(t, b.Current())
	var got []time.Duration
	for i := 0; i < 12; i++ {
		b.Fail()
		got = append(got, b.Current())
		b.Sleep()
	}
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, time.Second, 1500 * time.Millisecond, 2 * time.Second,
		2500 * time.Millisecond, 3 * time.Second, 3500 * time.Millisecond, 4 * time.Second,
		4500 * time.Millisecond, 5 * time.Second, 5 * time.Second, 5 * time.Second,
	}, got)
	assert.Equal(t, got, clk.Sleeps())
	assert.Equal(t, 12, b.Consecutive())

	b.Reset()
	assert.Zero(t, b.Current())
	assert.Zero(t, b.Consecutive())
}
