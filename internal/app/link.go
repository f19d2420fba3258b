package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// Link is one end of the protocol: it sends frames or responses and reads
// the other direction with deadlines.
type Link struct {
	stream *protocol.Stream
	codec  protocol.Codec
	dec    *protocol.Decoder
	clock  ports.Clock
	logger ports.Logger
}

// NewLink wraps a transport for the given configuration.
func NewLink(t ports.Transport, clock ports.Clock, cfg TransferConfig, logger ports.Logger) (*Link, error) {
	stream, err := protocol.NewStream(t, clock, cfg.PollInterval)
	if err != nil {
		return nil, err
	}
	codec := cfg.Codec()
	dec := protocol.NewDecoder(stream, codec, cfg.ChunkSize)
	dec.OnNoise = func(line string) {
		logger.Debug("peer", ports.String("line", line))
	}
	return &Link{
		stream: stream,
		codec:  codec,
		dec:    dec,
		clock:  clock,
		logger: logger,
	}, nil
}

// SetVariant switches the payload framing for the next frames.
func (l *Link) SetVariant(v domain.Variant) {
	l.codec.Variant = v
	l.dec.SetCodec(l.codec)
}

// Variant returns the active variant.
func (l *Link) Variant() domain.Variant { return l.codec.Variant }

// Decoder exposes the frame decoder for receiver-side loops.
func (l *Link) Decoder() *protocol.Decoder { return l.dec }

// Send encodes and writes f.
func (l *Link) Send(f domain.Frame) error {
	b, err := l.codec.Encode(f)
	if err != nil {
		return err
	}
	if err := l.stream.Write(b); err != nil {
		return fmt.Errorf("send %s: %w", f.Command(), err)
	}
	return nil
}

// Write sends raw bytes.
func (l *Link) Write(b []byte) error {
	return l.stream.Write(b)
}

// Respond writes a textual response line.
func (l *Link) Respond(r protocol.Response) error {
	return l.stream.Write(r.Bytes())
}

// Drain discards unread input such as boot banners and stale responses.
func (l *Link) Drain() {
	if err := l.stream.Drain(); err != nil {
		l.logger.Debug("input reset failed", ports.Err(err))
	}
}

// Await reads response lines until one of kinds or an ERROR arrives.
// Unrecognized lines are peer chatter and only logged.
func (l *Link) Await(ctx context.Context, timeout time.Duration, kinds ...protocol.ResponseKind) (protocol.Response, error) {
	deadline := l.clock.Now().Add(timeout)
	for {
		line, err := l.stream.ReadLine(ctx, deadline)
		if err != nil {
			return protocol.Response{}, fmt.Errorf("waiting for %s: %w", kindNames(kinds), err)
		}
		resp, ok := protocol.ParseResponse(line)
		if !ok {
			if line != "" {
				l.logger.Debug("peer", ports.String("line", line))
			}
			continue
		}
		if resp.Kind == protocol.RespError {
			return resp, nil
		}
		for _, k := range kinds {
			if resp.Kind == k {
				return resp, nil
			}
		}
		l.logger.Debug("ignoring unexpected response",
			ports.String("response", resp.String()),
			ports.String("want", kindNames(kinds)),
		)
	}
}

// Next decodes the next frame within timeout.
func (l *Link) Next(ctx context.Context, timeout time.Duration) (domain.Frame, error) {
	return l.dec.Next(ctx, l.clock.Now().Add(timeout))
}

// NextRaw decodes the next standalone chunk within timeout.
func (l *Link) NextRaw(ctx context.Context, timeout time.Duration) (domain.Chunk, bool, error) {
	return l.dec.NextRaw(ctx, l.clock.Now().Add(timeout))
}

// ReadLine reads one raw line within timeout.
func (l *Link) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	return l.stream.ReadLine(ctx, l.clock.Now().Add(timeout))
}

func kindNames(kinds []protocol.ResponseKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "|")
}

// peerError converts an ERROR response into ErrPeerRejected.
func peerError(resp protocol.Response) error {
	if resp.Message == "" {
		return domain.ErrPeerRejected
	}
	return fmt.Errorf("%w: %s", domain.ErrPeerRejected, resp.Message)
}
