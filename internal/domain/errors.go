package domain

import (
	"errors"
	"fmt"
)

// Protocol errors. Check with errors.Is; concrete errors are wrapped with
// context by the layer that detects them.
var (
	// ErrTransportTimeout is returned when no byte or response arrives before
	// the deadline.
	ErrTransportTimeout = errors.New("serialship: transport timeout")

	// ErrFraming is returned for a missing magic, malformed header or
	// truncated payload.
	ErrFraming = errors.New("serialship: framing error")

	// ErrUnknownCommand is returned when a frame carries a command byte that
	// has no payload definition.
	ErrUnknownCommand = errors.New("serialship: unknown command")

	// ErrChecksumMismatch is returned when a chunk or whole-file CRC differs.
	ErrChecksumMismatch = errors.New("serialship: checksum mismatch")

	// ErrSizeMismatch is returned when declared and received byte counts differ.
	ErrSizeMismatch = errors.New("serialship: size mismatch")

	// ErrIllegalPath is returned for paths that would escape the mirror root.
	ErrIllegalPath = errors.New("serialship: illegal path")

	// ErrSessionNotReady is returned when the peer does not answer READY.
	ErrSessionNotReady = errors.New("serialship: session not ready")

	// ErrSessionCloseFailed is returned when END_SESSION is not acknowledged.
	ErrSessionCloseFailed = errors.New("serialship: session close failed")

	// ErrSessionAlreadyOpen is returned when a session is started while
	// another one is open.
	ErrSessionAlreadyOpen = errors.New("serialship: session already open")

	// ErrNoSession is returned when a transfer is attempted outside a session.
	ErrNoSession = errors.New("serialship: no open session")

	// ErrPeerRejected is returned when the peer answers ERROR.
	ErrPeerRejected = errors.New("serialship: peer rejected request")

	// ErrRetriesExhausted is returned when a chunk fails MaxRetries times.
	ErrRetriesExhausted = errors.New("serialship: retries exhausted")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("serialship: invalid configuration")
)

// FramingError describes a frame that could not be decoded.
// It matches ErrFraming and unwraps to the underlying cause, which is
// ErrTransportTimeout when the stream ended mid-payload.
type FramingError struct {
	Command Command
	Reason  string
	Err     error
}

func (e *FramingError) Error() string {
	msg := fmt.Sprintf("framing error (%s): %s", e.Command, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

func (e *FramingError) Unwrap() error { return e.Err }

// FileError attaches the logical path to a per-file failure.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }
