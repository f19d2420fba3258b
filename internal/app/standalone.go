package app

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/bft-labs/serialship/internal/checksum"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// StandaloneSender pushes one file over the TRANSFER_V2 exchange, outside
// any session.
type StandaloneSender struct {
	link   *Link
	cfg    TransferConfig
	clock  ports.Clock
	logger ports.Logger
	events EventHandler
	engine *ChunkEngine
}

// NewStandaloneSender creates a standalone sender on link.
func NewStandaloneSender(link *Link, clock ports.Clock, cfg TransferConfig, logger ports.Logger, events EventHandler) *StandaloneSender {
	if events == nil {
		events = NopEvents{}
	}
	engine := NewChunkEngine(link, clock, cfg, logger, events)
	engine.raw = true
	return &StandaloneSender{link: link, cfg: cfg, clock: clock, logger: logger, events: events, engine: engine}
}

// Send transfers spec and returns its outcome.
func (s *StandaloneSender) Send(ctx context.Context, spec FileSpec) domain.TransferOutcome {
	start := s.clock.Now()
	o := s.send(ctx, spec)
	o.Critical = spec.Critical
	o.Duration = s.clock.Now().Sub(start)
	s.events.OnFileDone(o)
	if o.Status == domain.OutcomeCompleted {
		s.logger.Info("file transferred", ports.String("path", o.Path), ports.Uint64("bytes", o.Bytes), ports.Int("retries", o.Retries))
	} else {
		s.logger.Error("file failed", ports.String("path", o.Path), ports.String("reason", o.Reason))
	}
	return o
}

func (s *StandaloneSender) send(ctx context.Context, spec FileSpec) domain.TransferOutcome {
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
	desc := domain.FileDescriptor{Path: spec.RemoteName, Size: uint32(size), CRC: crc, ChunkSize: s.cfg.ChunkSize}
	if err := desc.Validate(); err != nil {
		return domain.Failed(desc.Path, err)
	}
	s.events.OnFileStart(desc)

	s.link.Drain()
	if err := s.link.Send(domain.StandaloneBegin{Descriptor: desc}); err != nil {
		return domain.Failed(desc.Path, err)
	}
	resp, err := s.link.Await(ctx, s.cfg.HandshakeTimeout, protocol.RespReadyV2)
	if err != nil {
		return domain.Failed(desc.Path, fmt.Errorf("%w: %w", domain.ErrSessionNotReady, err))
	}
	if resp.Kind == protocol.RespError {
		return domain.Failed(desc.Path, fmt.Errorf("%w: %w", domain.ErrSessionNotReady, peerError(resp)))
	}
	s.logger.Info("sending file",
		ports.String("path", desc.Path),
		ports.Uint32("size", desc.Size),
		ports.Hex32("crc", desc.CRC),
	)

	stats, err := s.engine.Send(ctx, desc, f)
	if err == nil {
		err = s.engine.Finish(ctx, desc)
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
