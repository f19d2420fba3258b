package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/bft-labs/serialship/internal/checksum"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// SessionController drives one session at a time over a link:
// Idle -> Negotiating -> Transferring -> Closed, with Negotiating -> Idle
// when the handshake fails.
type SessionController struct {
	mu    sync.RWMutex
	state domain.SessionState

	cfg        TransferConfig
	link       *Link
	clock      ports.Clock
	logger     ports.Logger
	events     EventHandler
	negotiator *Negotiator
	engine     *ChunkEngine

	session *domain.Session
	opened  bool
	closed  bool
	aborted bool
	failure error
}

// NewSessionController creates a controller in the Idle state.
func NewSessionController(link *Link, clock ports.Clock, cfg TransferConfig, logger ports.Logger, events EventHandler) *SessionController {
	if events == nil {
		events = NopEvents{}
	}
	return &SessionController{
		state:      domain.SessionIdle,
		cfg:        cfg,
		link:       link,
		clock:      clock,
		logger:     logger,
		events:     events,
		negotiator: NewNegotiator(link, cfg, logger),
		engine:     NewChunkEngine(link, clock, cfg, logger, events),
	}
}

// State returns the current session state.
func (c *SessionController) State() domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transitionTo validates and applies a state change.
func (c *SessionController) transitionTo(next domain.SessionState, reason string) error {
	c.mu.Lock()
	prev := c.state

	valid := false
	switch prev {
	case domain.SessionIdle, domain.SessionClosed:
		valid = next == domain.SessionNegotiating
	case domain.SessionNegotiating:
		valid = next == domain.SessionTransferring || next == domain.SessionIdle
	case domain.SessionTransferring:
		valid = next == domain.SessionClosed
	}
	if !valid {
		c.mu.Unlock()
		if next == domain.SessionNegotiating {
			return domain.ErrSessionAlreadyOpen
		}
		return fmt.Errorf("%w: cannot move from %s to %s", domain.ErrNoSession, prev, next)
	}
	c.state = next
	if c.session != nil {
		c.session.State = next
	}
	c.mu.Unlock()

	c.events.OnSessionState(prev, next, reason)
	c.logger.Debug("session state",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

// Start opens a session. No file may be sent unless it returns nil.
func (c *SessionController) Start(ctx context.Context, name string) error {
	switch c.State() {
	case domain.SessionNegotiating, domain.SessionTransferring:
		return domain.ErrSessionAlreadyOpen
	}
	sess, err := domain.NewSession(name, c.cfg.Variant, c.clock.Now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = sess
	c.opened, c.closed, c.aborted, c.failure = false, false, false, nil
	c.mu.Unlock()

	if err := c.transitionTo(domain.SessionNegotiating, "start"); err != nil {
		return err
	}

	c.logger.Info("starting session",
		ports.String("session", name),
		ports.String("id", sess.ID.String()),
		ports.String("variant", c.cfg.Variant.String()),
	)

	c.link.SetVariant(c.cfg.Variant)
	c.link.Drain()

	if err := c.handshake(ctx, name); err != nil {
		_ = c.transitionTo(domain.SessionIdle, "handshake failed")
		c.mu.Lock()
		c.failure = err
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	return c.transitionTo(domain.SessionTransferring, "ready")
}

func (c *SessionController) handshake(ctx context.Context, name string) error {
	if err := c.link.Send(domain.StartSession{Name: name}); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSessionNotReady, err)
	}
	resp, err := c.link.Await(ctx, c.cfg.HandshakeTimeout, protocol.RespReady)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", domain.ErrSessionNotReady, err)
	}
	if resp.Kind == protocol.RespError {
		return fmt.Errorf("%w: %w", domain.ErrSessionNotReady, peerError(resp))
	}
	return nil
}

// TransferFile announces and streams one file, returning its outcome.
// The outcome is also recorded in the session.
func (c *SessionController) TransferFile(ctx context.Context, spec FileSpec) domain.TransferOutcome {
	start := c.clock.Now()
	outcome := c.transferFile(ctx, spec)
	outcome.Critical = spec.Critical
	outcome.Duration = c.clock.Now().Sub(start)

	c.mu.Lock()
	if c.session != nil {
		c.session.Record(outcome)
	}
	c.mu.Unlock()

	c.events.OnFileDone(outcome)
	if outcome.Status == domain.OutcomeCompleted {
		c.logger.Info("file transferred",
			ports.String("path", outcome.Path),
			ports.Uint64("bytes", outcome.Bytes),
			ports.Int("chunks", outcome.Chunks),
			ports.Int("retries", outcome.Retries),
		)
	} else {
		c.logger.Error("file failed",
			ports.String("path", outcome.Path),
			ports.String("reason", outcome.Reason),
			ports.Bool("critical", spec.Critical),
		)
	}
	return outcome
}

func (c *SessionController) transferFile(ctx context.Context, spec FileSpec) domain.TransferOutcome {
	if c.State() != domain.SessionTransferring {
		return domain.Failed(spec.RemoteName, domain.ErrNoSession)
	}

	f, err := os.Open(spec.LocalPath)
	if err != nil {
		return domain.Failed(spec.RemoteName, &domain.FileError{Path: spec.LocalPath, Err: err})
	}
	defer f.Close()

	crc, size, err := checksum.Reader(f)
	if err != nil {
		return domain.Failed(spec.RemoteName, &domain.FileError{Path: spec.LocalPath, Err: err})
	}
	if size > math.MaxUint32 {
		return domain.Failed(spec.RemoteName, fmt.Errorf("%w: %d bytes exceed the 32-bit size field", domain.ErrSizeMismatch, size))
	}

	desc := domain.FileDescriptor{
		Path:      spec.RemoteName,
		Size:      uint32(size),
		CRC:       crc,
		ChunkSize: c.cfg.ChunkSize,
	}
	c.events.OnFileStart(desc)
	c.logger.Info("sending file",
		ports.String("path", desc.Path),
		ports.Uint32("size", desc.Size),
		ports.Int("chunks", desc.ChunkCount()),
	)

	if err := c.negotiator.Announce(ctx, desc); err != nil {
		return domain.Failed(desc.Path, err)
	}
	if desc.Size == 0 {
		c.events.OnProgress(desc.Path, 0, 0)
		return domain.Completed(desc.Path, 0)
	}

	stats, err := c.engine.Send(ctx, desc, f)
	if err == nil {
		err = c.engine.Finish(ctx, desc)
	}
	if err != nil {
		o := domain.Failed(desc.Path, err)
		o.Bytes, o.Chunks, o.Retries = stats.Bytes, stats.Chunks, stats.Retries
		return o
	}

	o := domain.Completed(desc.Path, stats.Bytes)
	o.Chunks, o.Retries = stats.Chunks, stats.Retries
	return o
}

// Transfer sends files in order. A failed non-critical file is recorded
// and the next file follows; a critical failure, the abort policy, or a
// canceled context stops the session and returns an error.
func (c *SessionController) Transfer(ctx context.Context, files []FileSpec) error {
	if c.State() != domain.SessionTransferring {
		return domain.ErrNoSession
	}
	for _, spec := range files {
		if err := ctx.Err(); err != nil {
			return c.abort(err)
		}
		o := c.TransferFile(ctx, spec)
		if o.Status != domain.OutcomeFailed {
			continue
		}
		switch {
		case spec.Critical:
			return c.abort(fmt.Errorf("critical file %s: %w", o.Path, o.Err))
		case c.cfg.FailurePolicy == PolicyAbort:
			return c.abort(fmt.Errorf("file %s: %w", o.Path, o.Err))
		case errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
			return c.abort(o.Err)
		}
	}
	return nil
}

func (c *SessionController) abort(err error) error {
	c.mu.Lock()
	c.aborted = true
	c.failure = err
	c.mu.Unlock()
	return err
}

// End sends END_SESSION and waits for OK. The session is Closed either
// way; ErrSessionCloseFailed reports a missing OK.
func (c *SessionController) End(ctx context.Context) error {
	if c.State() != domain.SessionTransferring {
		return domain.ErrNoSession
	}

	err := c.link.Send(domain.EndSession{})
	if err == nil {
		var resp protocol.Response
		resp, err = c.link.Await(ctx, c.cfg.CloseTimeout, protocol.RespOK)
		if err == nil && resp.Kind == protocol.RespError {
			err = peerError(resp)
		}
	}
	_ = c.transitionTo(domain.SessionClosed, "end")

	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrSessionCloseFailed, err)
		c.mu.Lock()
		if c.failure == nil {
			c.failure = err
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.logger.Info("session closed")
	return nil
}

// Report snapshots the current or last session.
func (c *SessionController) Report() domain.SessionReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return domain.SessionReport{}
	}
	r := c.session.Report()
	r.Opened = c.opened
	r.Closed = c.closed
	r.Aborted = c.aborted
	if c.failure != nil {
		r.Error = c.failure.Error()
	}
	r.FinishedAt = c.clock.Now()
	return r
}

// Run performs a whole session: Start, Transfer, End. END_SESSION is sent
// even after an abort so the peer releases its open file.
func (c *SessionController) Run(ctx context.Context, name string, files []FileSpec) (domain.SessionReport, error) {
	if err := c.Start(ctx, name); err != nil {
		return c.Report(), err
	}
	transferErr := c.Transfer(ctx, files)

	endCtx := ctx
	if ctx.Err() != nil {
		endCtx = context.WithoutCancel(ctx)
	}
	endErr := c.End(endCtx)

	return c.Report(), errors.Join(transferErr, endErr)
}
