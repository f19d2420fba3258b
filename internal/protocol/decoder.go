package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bft-labs/serialship/internal/domain"
)

// DefaultPayloadTimeout bounds the read of a frame payload once its magic
// has been seen.
const DefaultPayloadTimeout = 2 * time.Second

// maxScan bounds the bytes held while searching for a magic.
const maxScan = 1024

// Decoder reads frames from a Stream.
//
// Bytes preceding a magic are discarded; printable ones are reported line
// by line through OnNoise so that peer debug output stays visible.
type Decoder struct {
	s     *Stream
	codec Codec

	// MaxChunk rejects V2 and standalone chunks announcing a larger length.
	MaxChunk uint32

	// PayloadTimeout bounds payload reads after the magic.
	PayloadTimeout time.Duration

	// OnNoise receives discarded text lines.
	OnNoise func(line string)

	chunkLen uint32
	scan     []byte
}

// NewDecoder returns a decoder reading from s.
func NewDecoder(s *Stream, codec Codec, maxChunk uint32) *Decoder {
	return &Decoder{
		s:              s,
		codec:          codec,
		MaxChunk:       maxChunk,
		PayloadTimeout: DefaultPayloadTimeout,
	}
}

// SetCodec switches variant between sessions.
func (d *Decoder) SetCodec(c Codec) { d.codec = c }

// ExpectChunk sets the implicit payload length of the next V1 FILE_CHUNK.
func (d *Decoder) ExpectChunk(n uint32) { d.chunkLen = n }

// Next scans for the next frame. It returns ErrTransportTimeout when no
// magic is found before deadline and a *domain.FramingError when a frame
// is malformed, after which the next call resynchronizes.
func (d *Decoder) Next(ctx context.Context, deadline time.Time) (domain.Frame, error) {
	standalone := []byte(StandaloneBegin)
	for {
		b, err := d.s.ReadByte(ctx, deadline)
		if err != nil {
			d.flushNoise(d.scan)
			d.scan = d.scan[:0]
			return nil, err
		}
		d.scan = append(d.scan, b)

		switch {
		case bytes.HasSuffix(d.scan, d.codec.Magic):
			d.flushNoise(d.scan[:len(d.scan)-len(d.codec.Magic)])
			d.scan = d.scan[:0]
			f, err := d.decodePayload(ctx)
			if err != nil {
				return nil, err
			}
			return f, nil

		case bytes.HasSuffix(d.scan, standalone):
			d.flushNoise(d.scan[:len(d.scan)-len(standalone)])
			d.scan = d.scan[:0]
			f, err := d.decodeStandaloneBegin(ctx)
			if err != nil {
				return nil, err
			}
			return f, nil

		case b == '\n':
			d.flushNoise(d.scan)
			d.scan = d.scan[:0]

		case len(d.scan) >= maxScan:
			keep := len(d.codec.Magic)
			if len(standalone) > keep {
				keep = len(standalone)
			}
			keep--
			d.flushNoise(d.scan[:len(d.scan)-keep])
			d.scan = append(d.scan[:0], d.scan[len(d.scan)-keep:]...)
		}
	}
}

func (d *Decoder) flushNoise(b []byte) {
	if d.OnNoise == nil {
		return
	}
	line := bytes.TrimSpace(b)
	if len(line) == 0 {
		return
	}
	printable := bytes.Map(func(r rune) rune {
		if r != utf8.RuneError && unicode.IsPrint(r) {
			return r
		}
		return -1
	}, line)
	if len(printable) > 0 {
		d.OnNoise(string(printable))
	}
}

func (d *Decoder) payloadDeadline() time.Time {
	return d.s.Clock().Now().Add(d.PayloadTimeout)
}

func (d *Decoder) decodePayload(ctx context.Context) (domain.Frame, error) {
	cmdByte, err := d.s.ReadByte(ctx, d.payloadDeadline())
	if err != nil {
		return nil, truncated(0, err)
	}
	cmd := domain.Command(cmdByte)
	r := &payloadReader{ctx: ctx, s: d.s, deadline: d.payloadDeadline(), cmd: cmd}

	switch cmd {
	case domain.CmdStartSession:
		name := r.shortString()
		return domain.StartSession{Name: name}, r.err

	case domain.CmdFileInfo:
		var desc domain.FileDescriptor
		desc.Path = r.shortString()
		desc.Size = r.u32()
		if d.codec.Variant == domain.VariantV2 {
			desc.CRC = r.u32()
			desc.ChunkSize = r.u32()
		}
		return domain.FileInfo{Descriptor: desc}, r.err

	case domain.CmdFileChunk:
		var ch domain.Chunk
		if d.codec.Variant == domain.VariantV2 {
			var n uint32
			ch.Offset, n, ch.CRC = r.u32(), r.u32(), r.u32()
			if r.err == nil && d.MaxChunk > 0 && n > d.MaxChunk {
				return nil, &domain.FramingError{Command: cmd, Reason: fmt.Sprintf("chunk length %d exceeds maximum %d", n, d.MaxChunk)}
			}
			ch.Data = r.bytes(int(n))
		} else {
			if d.chunkLen == 0 {
				return nil, &domain.FramingError{Command: cmd, Reason: "chunk without an announced file"}
			}
			ch.Data = r.bytes(int(d.chunkLen))
		}
		return domain.FileChunk{Chunk: ch}, r.err

	case domain.CmdFileEnd:
		size := r.u32()
		return domain.FileEnd{Size: size}, r.err

	case domain.CmdEndSession:
		return domain.EndSession{}, nil

	case domain.CmdDatasetRequest:
		name := r.shortString()
		return domain.DatasetRequest{Name: name}, r.err

	case domain.CmdDatasetFileInfo:
		n := r.u16()
		path := string(r.bytes(int(n)))
		size := r.u32()
		return domain.DatasetFileInfo{Path: path, Size: size}, r.err

	case domain.CmdDatasetFileChunk:
		n := r.u16()
		data := r.bytes(int(n))
		return domain.DatasetFileChunk{Data: data}, r.err

	case domain.CmdDatasetFileEnd:
		size := r.u32()
		return domain.DatasetFileEnd{Size: size}, r.err

	case domain.CmdDatasetDone:
		files := r.u32()
		total := r.u64()
		return domain.DatasetDone{TotalFiles: files, TotalBytes: total}, r.err
	}
	return nil, &domain.FramingError{Command: cmd, Reason: "no payload definition", Err: domain.ErrUnknownCommand}
}

func (d *Decoder) decodeStandaloneBegin(ctx context.Context) (domain.Frame, error) {
	cmd := domain.CmdStandaloneBegin
	r := &payloadReader{ctx: ctx, s: d.s, deadline: d.payloadDeadline(), cmd: cmd}
	n := r.u32()
	if r.err == nil && n > domain.MaxNameLength {
		return nil, &domain.FramingError{Command: cmd, Reason: fmt.Sprintf("name length %d too long", n)}
	}
	var desc domain.FileDescriptor
	desc.Path = string(r.bytes(int(n)))
	desc.Size = r.u32()
	desc.CRC = r.u32()
	desc.ChunkSize = r.u32()
	return domain.StandaloneBegin{Descriptor: desc}, r.err
}

// NextRaw reads one standalone chunk (V2 header plus payload, no magic).
// It returns end=true when the TRANSFER_END marker arrives instead.
func (d *Decoder) NextRaw(ctx context.Context, deadline time.Time) (ch domain.Chunk, end bool, err error) {
	hdr := make([]byte, ChunkHeaderSize)
	if err := d.s.ReadFull(ctx, hdr, deadline); err != nil {
		return domain.Chunk{}, false, err
	}
	if marker := []byte(StandaloneEnd); bytes.Equal(hdr, marker[:ChunkHeaderSize]) {
		nl, err := d.s.ReadByte(ctx, d.payloadDeadline())
		if err == nil && nl != '\n' {
			d.s.Unread([]byte{nl})
		}
		return domain.Chunk{}, true, nil
	}
	ch.Offset = le.Uint32(hdr[0:4])
	n := le.Uint32(hdr[4:8])
	ch.CRC = le.Uint32(hdr[8:12])
	if d.MaxChunk > 0 && n > d.MaxChunk {
		return domain.Chunk{}, false, &domain.FramingError{Command: domain.CmdFileChunk, Reason: fmt.Sprintf("chunk length %d exceeds maximum %d", n, d.MaxChunk)}
	}
	ch.Data = make([]byte, n)
	if err := d.s.ReadFull(ctx, ch.Data, d.payloadDeadline()); err != nil {
		return domain.Chunk{}, false, truncated(domain.CmdFileChunk, err)
	}
	return ch, false, nil
}

// payloadReader accumulates the first read error so that decoding code
// reads linearly.
type payloadReader struct {
	ctx      context.Context
	s        *Stream
	deadline time.Time
	cmd      domain.Command
	err      error
}

func (r *payloadReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	b := make([]byte, n)
	if err := r.s.ReadFull(r.ctx, b, r.deadline); err != nil {
		r.err = truncated(r.cmd, err)
		return nil
	}
	return b
}

func (r *payloadReader) shortString() string {
	n := r.bytes(1)
	if r.err != nil {
		return ""
	}
	return string(r.bytes(int(n[0])))
}

func (r *payloadReader) u16() uint16 {
	b := r.bytes(2)
	if r.err != nil {
		return 0
	}
	return le.Uint16(b)
}

func (r *payloadReader) u32() uint32 {
	b := r.bytes(4)
	if r.err != nil {
		return 0
	}
	return le.Uint32(b)
}

func (r *payloadReader) u64() uint64 {
	b := r.bytes(8)
	if r.err != nil {
		return 0
	}
	return le.Uint64(b)
}

func truncated(cmd domain.Command, err error) error {
	if errors.Is(err, domain.ErrTransportTimeout) {
		return &domain.FramingError{Command: cmd, Reason: "truncated payload", Err: err}
	}
	return err
}
