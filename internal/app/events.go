package app

import "github.com/bft-labs/serialship/internal/domain"

// EventHandler observes transfer progress. Callbacks run synchronously on
// the transfer goroutine and must not block.
type EventHandler interface {
	OnSessionState(previous, current domain.SessionState, reason string)
	OnFileStart(desc domain.FileDescriptor)
	OnProgress(path string, done, total uint64)
	OnFileDone(outcome domain.TransferOutcome)
}

// NopEvents ignores every event.
type NopEvents struct{}

func (NopEvents) OnSessionState(domain.SessionState, domain.SessionState, string) {}
func (NopEvents) OnFileStart(domain.FileDescriptor)                              {}
func (NopEvents) OnProgress(string, uint64, uint64)                              {}
func (NopEvents) OnFileDone(domain.TransferOutcome)                              {}
