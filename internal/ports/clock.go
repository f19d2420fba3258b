package ports

import "time"

// Clock abstracts time so that timeouts, inter-chunk delays and backoff can
// be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}
