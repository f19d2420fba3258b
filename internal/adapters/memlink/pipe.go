// Package memlink provides in-memory transports: a duplex pipe for
// sender/receiver loopback and a scripted transport for deterministic tests.
package memlink

import (
	"io"
	"sync"
	"time"
)

// halfPipe is one direction of a Pipe.
type halfPipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newHalfPipe() *halfPipe {
	h := &halfPipe{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *halfPipe) write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, io.ErrClosedPipe
	}
	h.buf = append(h.buf, p...)
	h.cond.Broadcast()
	return len(p), nil
}

func (h *halfPipe) read(p []byte, timeout time.Duration) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.buf) == 0 && !h.closed {
		timer := time.AfterFunc(timeout, func() {
			h.mu.Lock()
			h.cond.Broadcast()
			h.mu.Unlock()
		})
		deadline := time.Now().Add(timeout)
		for len(h.buf) == 0 && !h.closed && time.Now().Before(deadline) {
			h.cond.Wait()
		}
		timer.Stop()
	}
	if len(h.buf) == 0 {
		if h.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, h.buf)
	h.buf = h.buf[n:]
	return n, nil
}

func (h *halfPipe) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.cond.Broadcast()
}

func (h *halfPipe) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = h.buf[:0]
}

// End is one side of a Pipe. It implements ports.Transport and
// ports.InputResetter.
type End struct {
	in      *halfPipe
	out     *halfPipe
	mu      sync.Mutex
	timeout time.Duration
}

// Pipe returns two connected ends. Bytes written to one are read from the
// other; reads honour the configured read timeout and return (0, nil) when
// it expires.
func Pipe() (*End, *End) {
	a, b := newHalfPipe(), newHalfPipe()
	return &End{in: a, out: b, timeout: 100 * time.Millisecond},
		&End{in: b, out: a, timeout: 100 * time.Millisecond}
}

// Read reads buffered bytes, waiting up to the read timeout.
func (e *End) Read(p []byte) (int, error) {
	e.mu.Lock()
	timeout := e.timeout
	e.mu.Unlock()
	return e.in.read(p, timeout)
}

// Write appends p to the peer's input.
func (e *End) Write(p []byte) (int, error) { return e.out.write(p) }

// SetReadTimeout sets the per-read timeout.
func (e *End) SetReadTimeout(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
	return nil
}

// ResetInputBuffer drops unread input.
func (e *End) ResetInputBuffer() error {
	e.in.reset()
	return nil
}

// Close closes both directions; the peer reads io.EOF once drained.
func (e *End) Close() error {
	e.in.close()
	e.out.close()
	return nil
}
