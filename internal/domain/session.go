package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState is the state of the session controller.
type SessionState uint8

const (
	SessionIdle SessionState = iota
	SessionNegotiating
	SessionTransferring
	SessionClosed
)

// String returns a human-readable representation of the state.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "Idle"
	case SessionNegotiating:
		return "Negotiating"
	case SessionTransferring:
		return "Transferring"
	case SessionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session is one handshake-to-close interval. It is owned by a single
// session controller for its lifetime.
type Session struct {
	ID        uuid.UUID
	Name      string
	Variant   Variant
	State     SessionState
	Outcomes  []TransferOutcome
	StartedAt time.Time
}

// NewSession validates the name and creates an Idle session.
func NewSession(name string, variant Variant, now time.Time) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty session name", ErrInvalidConfig)
	}
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: session name longer than %d bytes", ErrInvalidConfig, MaxNameLength)
	}
	return &Session{
		ID:        uuid.New(),
		Name:      name,
		Variant:   variant,
		State:     SessionIdle,
		StartedAt: now,
	}, nil
}

// Record appends a file outcome.
func (s *Session) Record(o TransferOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// SessionReport is the persisted summary of a session.
type SessionReport struct {
	SessionID  string            `json:"session_id"`
	Name       string            `json:"name"`
	Variant    string            `json:"variant"`
	Outcomes   []TransferOutcome `json:"outcomes"`
	Opened     bool              `json:"opened"`
	Closed     bool              `json:"closed"`
	Aborted    bool              `json:"aborted,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Report snapshots the session.
func (s *Session) Report() SessionReport {
	out := make([]TransferOutcome, len(s.Outcomes))
	copy(out, s.Outcomes)
	return SessionReport{
		SessionID: s.ID.String(),
		Name:      s.Name,
		Variant:   s.Variant.String(),
		Outcomes:  out,
		StartedAt: s.StartedAt,
	}
}

// Counts returns the number of completed, failed and skipped files.
func (r SessionReport) Counts() (completed, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case OutcomeCompleted:
			completed++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return completed, failed, skipped
}

// Bytes returns the number of bytes of completed files.
func (r SessionReport) Bytes() uint64 {
	var total uint64
	for _, o := range r.Outcomes {
		if o.Status == OutcomeCompleted {
			total += o.Bytes
		}
	}
	return total
}

// Success is true when the session opened and closed cleanly and no file
// failed.
func (r SessionReport) Success() bool {
	if !r.Opened || !r.Closed || r.Aborted {
		return false
	}
	_, failed, _ := r.Counts()
	return failed == 0
}
