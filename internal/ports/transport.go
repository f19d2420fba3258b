package ports

import (
	"io"
	"time"
)

// Transport is a bidirectional byte stream to the peer.
//
// Read follows serial port semantics: when no byte arrives within the read
// timeout it returns (0, nil) rather than an error. Bytes may be lost or
// corrupted but are never reordered.
type Transport interface {
	io.ReadWriter

	// SetReadTimeout bounds how long a single Read blocks.
	SetReadTimeout(d time.Duration) error

	// Close releases the underlying device.
	Close() error
}

// InputResetter is implemented by transports that can discard bytes already
// buffered on the receive side (boot banners, stale acknowledgments).
type InputResetter interface {
	ResetInputBuffer() error
}
