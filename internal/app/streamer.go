package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// Streamer serves DATASET_REQUEST: it walks <root>/<dataset> in lexical
// order and emits the DATASET_* frames.
type Streamer struct {
	link   *Link
	clock  ports.Clock
	cfg    TransferConfig
	root   string
	logger ports.Logger
}

// NewStreamer creates a streamer for datasets below root.
func NewStreamer(link *Link, clock ports.Clock, cfg TransferConfig, root string, logger ports.Logger) *Streamer {
	return &Streamer{link: link, clock: clock, cfg: cfg, root: root, logger: logger}
}

// Stream answers READY (or ERROR), sends every file and finishes with
// DATASET_DONE and DONE.
func (s *Streamer) Stream(ctx context.Context, dataset string) error {
	dir, clean, err := SafeJoin(s.root, dataset)
	if err != nil {
		return s.link.Respond(protocol.ErrorResponse("illegal dataset name"))
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return s.link.Respond(protocol.ErrorResponse("dataset not found: " + clean))
	}
	if err := s.link.Respond(protocol.Simple(protocol.RespReady)); err != nil {
		return err
	}
	s.logger.Info("streaming dataset", ports.String("dataset", clean), ports.String("dir", dir))

	var files uint32
	var total uint64
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		logical := clean + "/" + filepath.ToSlash(rel)
		n, err := s.sendFile(logical, path)
		if errors.Is(err, errTooLarge) {
			s.logger.Warn("skipping dataset file", ports.String("file", logical), ports.Err(err))
			return nil
		}
		if err != nil {
			return err
		}
		files++
		total += n
		return nil
	})
	if err != nil {
		return fmt.Errorf("stream %s: %w", clean, err)
	}

	if err := s.link.Send(domain.DatasetDone{TotalFiles: files, TotalBytes: total}); err != nil {
		return err
	}
	s.logger.Info("dataset streamed", ports.String("dataset", clean), ports.Int64("files", int64(files)), ports.Uint64("bytes", total))
	return s.link.Respond(protocol.Simple(protocol.RespDone))
}

var errTooLarge = fmt.Errorf("%w: file exceeds the 32-bit size field", domain.ErrSizeMismatch)

func (s *Streamer) sendFile(logical, path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	size := info.Size()
	if size > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes", errTooLarge, size)
	}

	if err := s.link.Send(domain.DatasetFileInfo{Path: logical, Size: uint32(size)}); err != nil {
		return 0, err
	}
	// a file growing while it is streamed is cut at its announced size
	src := io.LimitReader(f, size)
	buf := make([]byte, s.cfg.ChunkSize)
	var sent uint64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := s.link.Send(domain.DatasetFileChunk{Data: buf[:n]}); err != nil {
				return sent, err
			}
			sent += uint64(n)
			if s.cfg.ChunkDelay > 0 {
				s.clock.Sleep(s.cfg.ChunkDelay)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return sent, rerr
		}
	}
	return sent, s.link.Send(domain.DatasetFileEnd{Size: uint32(sent)})
}
