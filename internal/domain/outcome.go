package domain

import (
	"fmt"
	"time"
)

// OutcomeStatus is the terminal state of a single file transfer.
type OutcomeStatus uint8

const (
	OutcomeCompleted OutcomeStatus = iota + 1
	OutcomeFailed
	OutcomeSkipped
)

// String returns the status name.
func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status for JSON reports.
func (s OutcomeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes the status from JSON reports.
func (s *OutcomeStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "completed":
		*s = OutcomeCompleted
	case "failed":
		*s = OutcomeFailed
	case "skipped":
		*s = OutcomeSkipped
	default:
		return fmt.Errorf("unknown outcome status %q", string(b))
	}
	return nil
}

// TransferOutcome is the per-file result.
//
// Completed means the offset reached the declared length and the checksum
// (when known) matched.
type TransferOutcome struct {
	Path     string        `json:"path"`
	Status   OutcomeStatus `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Bytes    uint64        `json:"bytes"`
	Chunks   int           `json:"chunks"`
	Retries  int           `json:"retries"`
	Critical bool          `json:"critical,omitempty"`
	Duration time.Duration `json:"duration"`

	// Err is the failure cause; not persisted.
	Err error `json:"-"`
}

// Completed builds a completed outcome.
func Completed(path string, bytes uint64) TransferOutcome {
	return TransferOutcome{Path: path, Status: OutcomeCompleted, Bytes: bytes}
}

// Failed builds a failed outcome from an error.
func Failed(path string, err error) TransferOutcome {
	o := TransferOutcome{Path: path, Status: OutcomeFailed, Err: err}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

// Skipped builds a skipped outcome.
func Skipped(path, reason string) TransferOutcome {
	return TransferOutcome{Path: path, Status: OutcomeSkipped, Reason: reason}
}

// OK reports whether the outcome is not a failure.
func (o TransferOutcome) OK() bool { return o.Status != OutcomeFailed }
