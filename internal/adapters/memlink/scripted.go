package memlink

import (
	"io"
	"sync"
	"time"

	"github.com/bft-labs/serialship/internal/adapters/clock"
)

// Responder is called with every chunk written to a Scripted transport and
// returns the bytes the simulated peer sends back.
type Responder func(written []byte) []byte

// Scripted is a single-goroutine transport driven by a Manual clock. An
// empty read advances the clock by the read timeout, so deadlines expire
// without real waiting.
type Scripted struct {
	mu        sync.Mutex
	clock     *clock.Manual
	timeout   time.Duration
	input     []byte
	written   [][]byte
	responder Responder
	resets    int
	closed    bool
}

// NewScripted returns a transport bound to clk.
func NewScripted(clk *clock.Manual) *Scripted {
	return &Scripted{clock: clk, timeout: 100 * time.Millisecond}
}

// Respond installs the responder.
func (s *Scripted) Respond(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
}

// Feed queues bytes for reading.
func (s *Scripted) Feed(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = append(s.input, b...)
}

// FeedString queues a string for reading.
func (s *Scripted) FeedString(str string) { s.Feed([]byte(str)) }

// Read returns queued bytes or advances the clock by the read timeout.
// Once closed and drained it returns io.EOF.
func (s *Scripted) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.input) == 0 && s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if len(s.input) == 0 {
		timeout := s.timeout
		s.mu.Unlock()
		s.clock.Advance(timeout)
		return 0, nil
	}
	n := copy(p, s.input)
	s.input = s.input[n:]
	s.mu.Unlock()
	return n, nil
}

// Write records p and queues the responder's reply.
func (s *Scripted) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.written = append(s.written, append([]byte(nil), p...))
	r := s.responder
	s.mu.Unlock()
	if r != nil {
		if reply := r(p); len(reply) > 0 {
			s.Feed(reply)
		}
	}
	return len(p), nil
}

// SetReadTimeout sets how far an empty read advances the clock.
func (s *Scripted) SetReadTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
	return nil
}

// ResetInputBuffer drops queued input.
func (s *Scripted) ResetInputBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = nil
	s.resets++
	return nil
}

// Close marks the transport closed. Queued input stays readable.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Written returns every write in order.
func (s *Scripted) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}

// Closed reports whether Close was called.
func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
