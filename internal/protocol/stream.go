package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
)

// DefaultPollInterval is the read timeout applied to the transport. Reads
// that return nothing are retried until the caller's deadline.
const DefaultPollInterval = 100 * time.Millisecond

// MaxLineLength bounds a response line. Longer lines are split.
const MaxLineLength = 1024

// Stream adds deadline-bounded reads on top of a Transport.
//
// A Stream is not safe for concurrent use; the protocol is strictly
// request/response and one goroutine owns the transport.
type Stream struct {
	t       ports.Transport
	clock   ports.Clock
	pending []byte
	buf     []byte
}

// NewStream wraps t. The transport read timeout is set to poll so that
// deadlines and context cancellation are observed at that granularity.
func NewStream(t ports.Transport, clock ports.Clock, poll time.Duration) (*Stream, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if err := t.SetReadTimeout(poll); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Stream{t: t, clock: clock, buf: make([]byte, 4096)}, nil
}

// Clock returns the stream's time source.
func (s *Stream) Clock() ports.Clock { return s.clock }

// Write sends p in full.
func (s *Stream) Write(p []byte) error {
	for len(p) > 0 {
		n, err := s.t.Write(p)
		if err != nil {
			return fmt.Errorf("transport write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("transport write: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// fill reads at least one byte into pending or fails once the deadline
// passes.
func (s *Stream) fill(ctx context.Context, deadline time.Time) error {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.t.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.buf[:n]...)
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("transport closed: %w", err)
			}
			return fmt.Errorf("transport read: %w", err)
		}
		if !s.clock.Now().Before(deadline) {
			return domain.ErrTransportTimeout
		}
	}
	return nil
}

// ReadByte returns the next byte.
func (s *Stream) ReadByte(ctx context.Context, deadline time.Time) (byte, error) {
	if err := s.fill(ctx, deadline); err != nil {
		return 0, err
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, nil
}

// ReadFull fills p or fails with ErrTransportTimeout.
func (s *Stream) ReadFull(ctx context.Context, p []byte, deadline time.Time) error {
	for len(p) > 0 {
		if err := s.fill(ctx, deadline); err != nil {
			return err
		}
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		p = p[n:]
	}
	return nil
}

// ReadLine returns the next line without its CR/LF terminator.
func (s *Stream) ReadLine(ctx context.Context, deadline time.Time) (string, error) {
	var line []byte
	for {
		if err := s.fill(ctx, deadline); err != nil {
			if len(line) > 0 && errors.Is(err, domain.ErrTransportTimeout) {
				// keep the partial line for the next caller
				s.pending = append(line, s.pending...)
			}
			return "", err
		}
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line = append(line, s.pending[:i]...)
			s.pending = s.pending[i+1:]
			return string(bytes.TrimRight(line, "\r")), nil
		}
		line = append(line, s.pending...)
		s.pending = s.pending[:0]
		if len(line) >= MaxLineLength {
			return string(line), nil
		}
	}
}

// Unread pushes b back in front of the pending input.
func (s *Stream) Unread(b []byte) {
	if len(b) == 0 {
		return
	}
	s.pending = append(append([]byte(nil), b...), s.pending...)
}

// Drain discards pending input and, when supported, the transport's
// receive buffer.
func (s *Stream) Drain() error {
	s.pending = s.pending[:0]
	if r, ok := s.t.(ports.InputResetter); ok {
		return r.ResetInputBuffer()
	}
	return nil
}
