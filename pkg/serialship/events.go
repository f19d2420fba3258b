package serialship

import (
	"github.com/bft-labs/serialship/internal/app"
	"github.com/bft-labs/serialship/internal/domain"
)

// SessionStateEvent reports a session controller transition.
type SessionStateEvent struct {
	Previous string
	Current  string
	Reason   string
}

// FileStartEvent is emitted once a file's descriptor is known.
type FileStartEvent struct {
	Path      string
	Size      uint32
	CRC       uint32
	ChunkSize uint32
}

// ProgressEvent reports bytes acknowledged (or written, on the receive
// side) for the current file.
type ProgressEvent struct {
	Path  string
	Done  uint64
	Total uint64
}

// FileDoneEvent carries a file's final outcome.
type FileDoneEvent struct {
	Outcome Outcome
}

// EventHandler receives notifications about transfers. Callbacks run
// synchronously on the transfer goroutine and should return quickly.
type EventHandler interface {
	OnSessionState(event SessionStateEvent)
	OnFileStart(event FileStartEvent)
	OnProgress(event ProgressEvent)
	OnFileDone(event FileDoneEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnSessionState(SessionStateEvent) {}
func (BaseEventHandler) OnFileStart(FileStartEvent)       {}
func (BaseEventHandler) OnProgress(ProgressEvent)         {}
func (BaseEventHandler) OnFileDone(FileDoneEvent)         {}

// eventAdapter adapts EventHandler to the engine's event interface.
type eventAdapter struct {
	handler EventHandler
}

var _ app.EventHandler = eventAdapter{}

func (e eventAdapter) OnSessionState(previous, current domain.SessionState, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnSessionState(SessionStateEvent{
		Previous: previous.String(),
		Current:  current.String(),
		Reason:   reason,
	})
}

func (e eventAdapter) OnFileStart(desc domain.FileDescriptor) {
	if e.handler == nil {
		return
	}
	e.handler.OnFileStart(FileStartEvent{
		Path:      desc.Path,
		Size:      desc.Size,
		CRC:       desc.CRC,
		ChunkSize: desc.ChunkSize,
	})
}

func (e eventAdapter) OnProgress(path string, done, total uint64) {
	if e.handler == nil {
		return
	}
	e.handler.OnProgress(ProgressEvent{Path: path, Done: done, Total: total})
}

func (e eventAdapter) OnFileDone(o domain.TransferOutcome) {
	if e.handler == nil {
		return
	}
	e.handler.OnFileDone(FileDoneEvent{Outcome: o})
}
