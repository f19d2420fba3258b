package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// ReceiverConfig configures the peer side.
type ReceiverConfig struct {
	// Root receives session files under Root/<session>/ and standalone
	// files directly under Root.
	Root string

	Mode MirrorMode

	// DatasetRoot enables DATASET_REQUEST when set.
	DatasetRoot string
}

type finishedFile struct {
	desc domain.FileDescriptor
	err  error
}

// Receiver answers frames from a sender: sessions, standalone transfers
// and dataset requests.
type Receiver struct {
	link   *Link
	cfg    TransferConfig
	rcfg   ReceiverConfig
	clock  ports.Clock
	logger ports.Logger
	events EventHandler

	re       *Reassembler
	streamer *Streamer
	session  string
	last     *finishedFile
}

// NewReceiver creates a receiver on link.
func NewReceiver(link *Link, clock ports.Clock, cfg TransferConfig, rcfg ReceiverConfig, logger ports.Logger, events EventHandler) *Receiver {
	if events == nil {
		events = NopEvents{}
	}
	r := &Receiver{
		link:   link,
		cfg:    cfg,
		rcfg:   rcfg,
		clock:  clock,
		logger: logger,
		events: events,
	}
	if rcfg.DatasetRoot != "" {
		r.streamer = NewStreamer(link, clock, cfg, rcfg.DatasetRoot, logger)
	}
	return r
}

// Serve handles frames until ctx is canceled or the transport fails.
// A session idle for longer than the inactivity timeout is aborted and
// its partial file removed.
func (r *Receiver) Serve(ctx context.Context) error {
	r.link.SetVariant(r.cfg.Variant)
	defer r.closeSession("receiver stopped")

	timeout := r.cfg.InactivityTimeout
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}

	for {
		f, err := r.link.Next(ctx, timeout)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrFraming):
			r.logger.Warn("dropping malformed frame", ports.Err(err))
			continue
		case errors.Is(err, domain.ErrTransportTimeout):
			if r.session != "" {
				r.logger.Warn("session inactive, aborting",
					ports.String("session", r.session),
					ports.Duration("timeout", timeout),
				)
				r.closeSession("inactivity")
			}
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return err
		}

		if err := r.handle(ctx, f); err != nil {
			return err
		}
	}
}

func (r *Receiver) handle(ctx context.Context, f domain.Frame) error {
	switch fr := f.(type) {
	case domain.StartSession:
		return r.onStart(fr)
	case domain.FileInfo:
		return r.onFileInfo(fr.Descriptor)
	case domain.FileChunk:
		return r.onChunk(fr.Chunk)
	case domain.FileEnd:
		return r.onFileEnd(fr.Size)
	case domain.EndSession:
		r.closeSession("end session")
		return r.link.Respond(protocol.Simple(protocol.RespOK))
	case domain.DatasetRequest:
		if r.streamer == nil {
			return r.link.Respond(protocol.ErrorResponse("datasets disabled"))
		}
		if err := r.streamer.Stream(ctx, fr.Name); err != nil {
			r.logger.Error("dataset stream failed", ports.String("dataset", fr.Name), ports.Err(err))
		}
		return nil
	case domain.StandaloneBegin:
		r.closeSession("standalone transfer")
		return r.serveStandalone(ctx, fr.Descriptor)
	case domain.DatasetFileInfo, domain.DatasetFileChunk, domain.DatasetFileEnd, domain.DatasetDone:
		r.logger.Warn("unexpected dataset frame from sender", ports.String("command", f.Command().String()))
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownCommand, f.Command())
}

func (r *Receiver) onStart(fr domain.StartSession) error {
	r.closeSession("new session")
	dir, _, err := SafeJoin(r.rcfg.Root, fr.Name)
	if err != nil {
		r.logger.Warn("rejecting session", ports.String("session", fr.Name), ports.Err(err))
		return r.link.Respond(protocol.ErrorResponse("illegal session name"))
	}
	r.session = fr.Name
	r.re = NewReassembler(dir, r.rcfg.Mode, r.logger)
	r.last = nil
	r.logger.Info("session started", ports.String("session", fr.Name), ports.String("dir", dir))
	r.events.OnSessionState(domain.SessionIdle, domain.SessionTransferring, "start session")
	return r.link.Respond(protocol.Simple(protocol.RespReady))
}

func (r *Receiver) closeSession(reason string) {
	if r.session == "" {
		return
	}
	if r.re != nil && r.re.Open() {
		desc, cursor, _ := r.re.Current()
		r.logger.Warn("discarding incomplete file",
			ports.String("path", desc.Path),
			ports.Uint32("received", cursor),
			ports.Uint32("declared", desc.Size),
		)
		r.events.OnFileDone(domain.Failed(desc.Path, fmt.Errorf("%w: session closed at %d of %d bytes", domain.ErrSizeMismatch, cursor, desc.Size)))
		r.re.Abort()
	}
	r.logger.Info("session closed", ports.String("session", r.session), ports.String("reason", reason))
	r.events.OnSessionState(domain.SessionTransferring, domain.SessionClosed, reason)
	r.session = ""
	r.last = nil
}

func (r *Receiver) onFileInfo(desc domain.FileDescriptor) error {
	if r.session == "" {
		return r.link.Respond(protocol.ErrorResponse("no session"))
	}
	if desc.ChunkSize == 0 {
		desc.ChunkSize = r.cfg.ChunkSize
	}
	if desc.ChunkSize > r.cfg.ChunkSize {
		return r.link.Respond(protocol.ErrorResponse(fmt.Sprintf("chunk size %d exceeds %d", desc.ChunkSize, r.cfg.ChunkSize)))
	}
	verify := r.link.Variant() == domain.VariantV2
	if err := r.re.Begin(desc, verify); err != nil {
		r.logger.Warn("rejecting file", ports.String("path", desc.Path), ports.Err(err))
		r.events.OnFileDone(domain.Failed(desc.Path, err))
		return r.link.Respond(protocol.ErrorResponse(err.Error()))
	}
	r.last = nil
	r.events.OnFileStart(desc)

	if desc.Size == 0 {
		res, err := r.re.Finish(0)
		r.fileDone(desc, res, err)
		if err != nil {
			return r.link.Respond(protocol.ErrorResponse(err.Error()))
		}
		return r.link.Respond(protocol.Ack())
	}

	r.expectNext()
	return r.link.Respond(protocol.Ack())
}

// expectNext sets the implicit length of the next V1 chunk.
func (r *Receiver) expectNext() {
	desc, _, ok := r.re.Current()
	if !ok {
		r.link.Decoder().ExpectChunk(0)
		return
	}
	n := desc.ChunkSize
	if rem := r.re.Remaining(); rem < n {
		n = rem
	}
	r.link.Decoder().ExpectChunk(n)
}

func (r *Receiver) onChunk(ch domain.Chunk) error {
	if r.re == nil {
		return r.link.Respond(protocol.ErrorResponse("no session"))
	}
	if r.link.Variant() == domain.VariantV1 {
		return r.onChunkV1(ch)
	}

	if !r.re.Open() {
		return r.replayFinished(ch)
	}

	verdict, err := r.re.Accept(ch)
	if err != nil {
		desc, _, _ := r.re.Current()
		r.re.Abort()
		r.fileDone(desc, FinishResult{Path: desc.Path}, err)
		return r.link.Respond(protocol.ErrorResponse(err.Error()))
	}

	desc, cursor, _ := r.re.Current()
	switch verdict {
	case ChunkDuplicate:
		return r.link.Respond(protocol.AckAt(ch.Offset))
	case ChunkGap:
		return r.link.Respond(protocol.NackAt(ch.Offset, fmt.Sprintf("expected %d", cursor)))
	case ChunkCorrupt:
		r.logger.Debug("chunk crc mismatch", ports.Uint32("offset", ch.Offset))
		return r.link.Respond(protocol.NackAt(ch.Offset, "crc"))
	}

	r.events.OnProgress(desc.Path, uint64(cursor), uint64(desc.Size))
	if err := r.link.Respond(protocol.AckAt(ch.Offset)); err != nil {
		return err
	}
	if !r.re.Complete() {
		return nil
	}
	res, ferr := r.re.Finish(desc.Size)
	r.fileDone(desc, res, ferr)
	return r.respondComplete(ferr)
}

// replayFinished answers a retransmitted chunk of the file that was just
// completed, whose acknowledgment was lost.
func (r *Receiver) replayFinished(ch domain.Chunk) error {
	if r.last == nil || ch.End() > uint64(r.last.desc.Size) {
		return r.link.Respond(protocol.NackAt(ch.Offset, "no open file"))
	}
	if err := r.link.Respond(protocol.AckAt(ch.Offset)); err != nil {
		return err
	}
	if ch.End() == uint64(r.last.desc.Size) {
		return r.respondComplete(r.last.err)
	}
	return nil
}

func (r *Receiver) onChunkV1(ch domain.Chunk) error {
	if !r.re.Open() {
		return r.link.Respond(protocol.ErrorResponse("no open file"))
	}
	if err := r.re.Append(ch.Data); err != nil {
		desc, _, _ := r.re.Current()
		r.re.Abort()
		r.fileDone(desc, FinishResult{Path: desc.Path}, err)
		return r.link.Respond(protocol.ErrorResponse(err.Error()))
	}
	desc, cursor, _ := r.re.Current()
	r.events.OnProgress(desc.Path, uint64(cursor), uint64(desc.Size))
	r.expectNext()
	return r.link.Respond(protocol.Ack())
}

func (r *Receiver) onFileEnd(reported uint32) error {
	if r.re == nil {
		return r.link.Respond(protocol.ErrorResponse("no session"))
	}
	if !r.re.Open() {
		if r.last != nil && r.last.desc.Size == reported {
			return r.respondComplete(r.last.err)
		}
		return r.link.Respond(protocol.ErrorResponse("no open file"))
	}
	desc, _, _ := r.re.Current()
	res, err := r.re.Finish(reported)
	r.link.Decoder().ExpectChunk(0)
	r.fileDone(desc, res, err)
	return r.respondComplete(err)
}

func (r *Receiver) respondComplete(err error) error {
	if err != nil {
		return r.link.Respond(protocol.ErrorResponse(err.Error()))
	}
	return r.link.Respond(protocol.Simple(protocol.RespTransferComplete))
}

func (r *Receiver) fileDone(desc domain.FileDescriptor, res FinishResult, err error) {
	r.last = &finishedFile{desc: desc, err: err}
	var o domain.TransferOutcome
	switch {
	case err != nil:
		o = domain.Failed(desc.Path, err)
		r.logger.Error("file rejected", ports.String("path", desc.Path), ports.Err(err))
	case res.Discarded:
		o = domain.Skipped(res.Path, "reserved folder")
	default:
		o = domain.Completed(res.Path, res.Bytes)
		r.logger.Info("file received",
			ports.String("path", res.Path),
			ports.Uint64("bytes", res.Bytes),
			ports.Bool("size_mismatch", res.SizeMismatch),
		)
	}
	o.Bytes = res.Bytes
	r.events.OnFileDone(o)
}

// serveStandalone receives one file over the TRANSFER_V2 exchange. Any
// size or checksum mismatch removes the partial file.
func (r *Receiver) serveStandalone(ctx context.Context, desc domain.FileDescriptor) error {
	re := NewReassembler(r.rcfg.Root, ModeSingle, r.logger)
	defer re.Close()

	if desc.ChunkSize == 0 || desc.ChunkSize > r.cfg.ChunkSize {
		return r.link.Respond(protocol.ErrorResponse(fmt.Sprintf("chunk size %d not in 1..%d", desc.ChunkSize, r.cfg.ChunkSize)))
	}
	if err := re.Begin(desc, true); err != nil {
		r.logger.Warn("rejecting standalone file", ports.String("path", desc.Path), ports.Err(err))
		return r.link.Respond(protocol.ErrorResponse(err.Error()))
	}
	r.logger.Info("standalone transfer",
		ports.String("path", desc.Path),
		ports.Uint32("size", desc.Size),
		ports.String("dir", filepath.Clean(r.rcfg.Root)),
	)
	r.events.OnFileStart(desc)
	if err := r.link.Respond(protocol.Simple(protocol.RespReadyV2)); err != nil {
		return err
	}

	timeout := r.cfg.InactivityTimeout
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	for {
		ch, end, err := r.link.NextRaw(ctx, timeout)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrFraming):
			r.logger.Warn("dropping malformed chunk", ports.Err(err))
			r.link.Drain()
			continue
		case errors.Is(err, domain.ErrTransportTimeout):
			r.logger.Warn("standalone transfer stalled", ports.String("path", desc.Path))
			r.events.OnFileDone(domain.Failed(desc.Path, err))
			return nil
		default:
			return err
		}

		if end {
			res, ferr := re.Finish(desc.Size)
			r.fileDone(desc, res, ferr)
			return r.respondComplete(ferr)
		}

		verdict, err := re.Accept(ch)
		if err != nil {
			re.Abort()
			r.fileDone(desc, FinishResult{Path: desc.Path}, err)
			return r.link.Respond(protocol.ErrorResponse(err.Error()))
		}
		_, cursor, _ := re.Current()
		switch verdict {
		case ChunkWritten:
			r.events.OnProgress(desc.Path, uint64(cursor), uint64(desc.Size))
			err = r.link.Respond(protocol.AckAt(ch.Offset))
		case ChunkDuplicate:
			err = r.link.Respond(protocol.AckAt(ch.Offset))
		case ChunkGap:
			err = r.link.Respond(protocol.NackAt(ch.Offset, fmt.Sprintf("expected %d", cursor)))
		case ChunkCorrupt:
			err = r.link.Respond(protocol.NackAt(ch.Offset, "crc"))
		}
		if err != nil {
			return err
		}
	}
}
