package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/serialship/internal/checksum"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// ChunkStats summarizes one file's chunk phase.
type ChunkStats struct {
	Chunks  int
	Retries int
	Bytes   uint64
}

// ChunkEngine streams a file's chunks under the retry policy.
type ChunkEngine struct {
	link   *Link
	cfg    TransferConfig
	clock  ports.Clock
	logger ports.Logger
	events EventHandler

	// raw sends chunks without magic and ends with TRANSFER_END
	// (standalone exchange).
	raw bool
}

// NewChunkEngine creates a chunk engine on link.
func NewChunkEngine(link *Link, clock ports.Clock, cfg TransferConfig, logger ports.Logger, events EventHandler) *ChunkEngine {
	if events == nil {
		events = NopEvents{}
	}
	return &ChunkEngine{link: link, cfg: cfg, clock: clock, logger: logger, events: events}
}

// Send delivers every chunk of src in order. Offsets are 0, C, 2C, ...
// with C the descriptor's chunk size; the last chunk is shorter.
func (e *ChunkEngine) Send(ctx context.Context, desc domain.FileDescriptor, src io.ReaderAt) (ChunkStats, error) {
	var stats ChunkStats
	if desc.ChunkSize == 0 {
		return stats, fmt.Errorf("%w: chunk size must be positive", domain.ErrInvalidConfig)
	}

	buf := make([]byte, desc.ChunkSize)
	bo := newBackoff(e.cfg.BackoffBase, e.cfg.BackoffMax, e.clock)

	for off := uint32(0); off < desc.Size; {
		n := desc.ChunkSize
		if remaining := desc.Size - off; remaining < n {
			n = remaining
		}
		data := buf[:n]
		if read, err := src.ReadAt(data, int64(off)); read < len(data) {
			if err == nil || errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: file shrank to %d bytes", domain.ErrSizeMismatch, int(off)+read)
			}
			return stats, err
		}
		ch := domain.Chunk{Offset: off, Data: data, CRC: checksum.Sum(data)}

		if err := e.deliver(ctx, ch, bo, &stats); err != nil {
			return stats, err
		}

		off += n
		stats.Chunks++
		stats.Bytes += uint64(n)
		e.events.OnProgress(desc.Path, uint64(off), uint64(desc.Size))

		if off < desc.Size && e.cfg.ChunkDelay > 0 {
			e.clock.Sleep(e.cfg.ChunkDelay)
		}
	}
	return stats, nil
}

// deliver sends one chunk until it is acknowledged or MaxRetries attempts
// have failed.
func (e *ChunkEngine) deliver(ctx context.Context, ch domain.Chunk, bo *backoff, stats *ChunkStats) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.sendChunk(ch); err != nil {
			return err
		}

		reason, err := e.awaitAck(ctx, ch)
		if err != nil {
			return err
		}
		if reason == "" {
			bo.Reset()
			return nil
		}

		bo.Fail()
		if attempt >= e.cfg.MaxRetries {
			return fmt.Errorf("chunk at offset %d: %w after %d attempts: %s",
				ch.Offset, domain.ErrRetriesExhausted, attempt, reason)
		}
		stats.Retries++
		e.logger.Warn("retrying chunk",
			ports.Uint32("offset", ch.Offset),
			ports.Int("attempt", attempt),
			ports.String("reason", reason),
			ports.Duration("backoff", bo.Current()),
		)
		bo.Sleep()
	}
}

func (e *ChunkEngine) sendChunk(ch domain.Chunk) error {
	if e.raw {
		return e.link.Write(protocol.EncodeRawChunk(ch))
	}
	return e.link.Send(domain.FileChunk{Chunk: ch})
}

// awaitAck returns an empty reason on success, a failure reason for a
// retryable outcome, or an error when the transfer cannot continue.
func (e *ChunkEngine) awaitAck(ctx context.Context, ch domain.Chunk) (string, error) {
	addressed := e.raw || e.link.Variant() == domain.VariantV2

	resp, err := e.link.Await(ctx, e.cfg.AckTimeout, protocol.RespAck, protocol.RespNack)
	if err != nil {
		if errors.Is(err, domain.ErrTransportTimeout) {
			return "ack timeout", nil
		}
		return "", err
	}

	switch resp.Kind {
	case protocol.RespAck:
		if !addressed {
			return "", nil
		}
		if resp.HasOffset && resp.Offset == ch.Offset {
			return "", nil
		}
		return fmt.Sprintf("ack for offset %d", resp.Offset), nil
	case protocol.RespNack:
		return "nack: " + resp.String(), nil
	default:
		return "peer error: " + resp.Message, nil
	}
}

// Finish signals the end of the file and waits for TRANSFER_COMPLETE.
func (e *ChunkEngine) Finish(ctx context.Context, desc domain.FileDescriptor) error {
	switch {
	case e.raw:
		if err := e.link.Write([]byte(protocol.StandaloneEnd)); err != nil {
			return err
		}
	case e.link.Variant() == domain.VariantV1:
		if err := e.link.Send(domain.FileEnd{Size: desc.Size}); err != nil {
			return err
		}
	}

	resp, err := e.link.Await(ctx, e.cfg.CompleteTimeout, protocol.RespTransferComplete)
	if err != nil {
		return fmt.Errorf("awaiting completion: %w", err)
	}
	if resp.Kind == protocol.RespError {
		return peerError(resp)
	}
	return nil
}
