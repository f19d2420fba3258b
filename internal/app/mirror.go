package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// MirrorSummary is the result of a dataset fetch.
type MirrorSummary struct {
	Dataset  string
	Root     string
	Outcomes []domain.TransferOutcome

	// ReportedFiles and ReportedBytes come from DATASET_DONE.
	ReportedFiles uint32
	ReportedBytes uint64

	SizeMismatches int
}

// Counts returns completed, failed and skipped file counts.
func (s MirrorSummary) Counts() (completed, failed, skipped int) {
	return domain.SessionReport{Outcomes: s.Outcomes}.Counts()
}

// Bytes returns the bytes of completed files.
func (s MirrorSummary) Bytes() uint64 {
	return domain.SessionReport{Outcomes: s.Outcomes}.Bytes()
}

// Mirror pulls a dataset tree from the peer.
type Mirror struct {
	link   *Link
	cfg    TransferConfig
	clock  ports.Clock
	logger ports.Logger
	events EventHandler
	output string
}

// NewMirror creates a mirror writing below output.
func NewMirror(link *Link, clock ports.Clock, cfg TransferConfig, output string, logger ports.Logger, events EventHandler) *Mirror {
	if events == nil {
		events = NopEvents{}
	}
	return &Mirror{link: link, cfg: cfg, clock: clock, logger: logger, events: events, output: output}
}

// Fetch requests dataset and reconstructs it under <output>/<dataset>.
// Illegal paths fail only the affected file.
func (m *Mirror) Fetch(ctx context.Context, dataset string) (MirrorSummary, error) {
	root, clean, err := SafeJoin(m.output, dataset)
	if err != nil {
		return MirrorSummary{}, err
	}
	summary := MirrorSummary{Dataset: clean, Root: root}

	m.link.Drain()
	if err := m.link.Send(domain.DatasetRequest{Name: clean}); err != nil {
		return summary, err
	}
	resp, err := m.link.Await(ctx, m.cfg.HandshakeTimeout, protocol.RespReady)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", domain.ErrSessionNotReady, err)
	}
	if resp.Kind == protocol.RespError {
		return summary, peerError(resp)
	}
	m.logger.Info("fetching dataset", ports.String("dataset", clean), ports.String("root", root))

	re := NewReassembler(root, ModeMirror, m.logger)
	defer re.Close()

	timeout := m.cfg.InactivityTimeout
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	var (
		skipping bool
		current  domain.FileDescriptor
		start    = m.clock.Now()
	)
	for {
		f, err := m.link.Next(ctx, timeout)
		if err != nil {
			if errors.Is(err, domain.ErrFraming) {
				m.logger.Warn("dropping malformed frame", ports.Err(err))
				continue
			}
			if re.Open() {
				summary.Outcomes = append(summary.Outcomes, domain.Failed(current.Path, err))
			}
			return summary, fmt.Errorf("dataset stream: %w", err)
		}

		switch fr := f.(type) {
		case domain.DatasetFileInfo:
			if re.Open() {
				re.Abort()
				summary.Outcomes = append(summary.Outcomes, domain.Failed(current.Path, fmt.Errorf("%w: file not terminated", domain.ErrFraming)))
			}
			current = domain.FileDescriptor{Path: m.stripPrefix(clean, fr.Path), Size: fr.Size}
			start = m.clock.Now()
			if err := re.Begin(current, false); err != nil {
				m.logger.Warn("skipping file", ports.String("path", fr.Path), ports.Err(err))
				o := domain.Failed(current.Path, err)
				summary.Outcomes = append(summary.Outcomes, o)
				m.events.OnFileDone(o)
				skipping = true
				continue
			}
			skipping = false
			m.events.OnFileStart(current)

		case domain.DatasetFileChunk:
			if skipping {
				continue
			}
			if !re.Open() {
				m.logger.Warn("chunk outside a file", ports.Int("bytes", len(fr.Data)))
				continue
			}
			if err := re.Append(fr.Data); err != nil {
				re.Abort()
				o := domain.Failed(current.Path, err)
				summary.Outcomes = append(summary.Outcomes, o)
				m.events.OnFileDone(o)
				skipping = true
				continue
			}
			_, cursor, _ := re.Current()
			m.events.OnProgress(current.Path, uint64(cursor), uint64(current.Size))

		case domain.DatasetFileEnd:
			if skipping {
				skipping = false
				continue
			}
			if !re.Open() {
				continue
			}
			res, err := re.Finish(fr.Size)
			var o domain.TransferOutcome
			switch {
			case err != nil:
				o = domain.Failed(current.Path, err)
			case res.Discarded:
				o = domain.Skipped(res.Path, "reserved folder")
				o.Bytes = res.Bytes
			default:
				o = domain.Completed(res.Path, res.Bytes)
				if res.SizeMismatch {
					summary.SizeMismatches++
					o.Reason = fmt.Sprintf("size mismatch: declared %d, reported %d", current.Size, fr.Size)
				}
			}
			o.Duration = m.clock.Now().Sub(start)
			summary.Outcomes = append(summary.Outcomes, o)
			m.events.OnFileDone(o)

		case domain.DatasetDone:
			summary.ReportedFiles = fr.TotalFiles
			summary.ReportedBytes = fr.TotalBytes
			if int(fr.TotalFiles) != len(summary.Outcomes) {
				m.logger.Warn("file count differs from peer",
					ports.Int64("reported", int64(fr.TotalFiles)),
					ports.Int("received", len(summary.Outcomes)),
				)
			}
			m.awaitDone(ctx)
			return summary, nil

		default:
			m.logger.Warn("unexpected frame during dataset fetch", ports.String("command", f.Command().String()))
		}
	}
}

// awaitDone consumes the optional trailing DONE line.
func (m *Mirror) awaitDone(ctx context.Context) {
	if m.cfg.DoneTimeout <= 0 {
		return
	}
	if _, err := m.link.Await(ctx, m.cfg.DoneTimeout, protocol.RespDone); err != nil {
		m.logger.Debug("no trailing DONE", ports.Err(err))
	}
}

// stripPrefix removes the dataset folder from an incoming path.
func (m *Mirror) stripPrefix(dataset, p string) string {
	p = strings.TrimLeft(strings.ReplaceAll(p, `\`, "/"), "/")
	if rest, ok := strings.CutPrefix(p, dataset+"/"); ok {
		return rest
	}
	return p
}
