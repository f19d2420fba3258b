package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/bft-labs/serialship/internal/domain"
)

// DefaultMagic prefixes every command frame.
const DefaultMagic = "ESP32_XFER"

// Textual markers of the standalone single-binary exchange.
const (
	StandaloneBegin = "TRANSFER_V2\n"
	StandaloneEnd   = "TRANSFER_END\n"
)

// ChunkHeaderSize is the V2 chunk header: offset, length, crc (u32 LE).
const ChunkHeaderSize = 12

var le = binary.LittleEndian

// Codec encodes frames for one protocol variant.
type Codec struct {
	Magic   []byte
	Variant domain.Variant
}

// NewCodec returns a codec for the given magic and variant. An empty magic
// selects DefaultMagic.
func NewCodec(magic string, variant domain.Variant) Codec {
	if magic == "" {
		magic = DefaultMagic
	}
	return Codec{Magic: []byte(magic), Variant: variant}
}

// Encode serializes f including the magic and command byte.
func (c Codec) Encode(f domain.Frame) ([]byte, error) {
	if sb, ok := f.(domain.StandaloneBegin); ok {
		return encodeStandaloneBegin(sb)
	}

	buf := make([]byte, 0, len(c.Magic)+1+64)
	buf = append(buf, c.Magic...)
	buf = append(buf, byte(f.Command()))

	switch fr := f.(type) {
	case domain.StartSession:
		return appendShortString(buf, fr.Name)

	case domain.FileInfo:
		d := fr.Descriptor
		buf, err := appendShortString(buf, d.Path)
		if err != nil {
			return nil, err
		}
		buf = le.AppendUint32(buf, d.Size)
		if c.Variant == domain.VariantV2 {
			buf = le.AppendUint32(buf, d.CRC)
			buf = le.AppendUint32(buf, d.ChunkSize)
		}
		return buf, nil

	case domain.FileChunk:
		if c.Variant == domain.VariantV2 {
			buf = appendChunkHeader(buf, fr.Chunk)
		}
		return append(buf, fr.Chunk.Data...), nil

	case domain.FileEnd:
		return le.AppendUint32(buf, fr.Size), nil

	case domain.EndSession:
		return buf, nil

	case domain.DatasetRequest:
		return appendShortString(buf, fr.Name)

	case domain.DatasetFileInfo:
		if len(fr.Path) > domain.MaxDatasetPathLength {
			return nil, fmt.Errorf("%w: dataset path longer than %d bytes", domain.ErrIllegalPath, domain.MaxDatasetPathLength)
		}
		buf = le.AppendUint16(buf, uint16(len(fr.Path)))
		buf = append(buf, fr.Path...)
		return le.AppendUint32(buf, fr.Size), nil

	case domain.DatasetFileChunk:
		if len(fr.Data) > 0xFFFF {
			return nil, fmt.Errorf("dataset chunk of %d bytes exceeds u16 length", len(fr.Data))
		}
		buf = le.AppendUint16(buf, uint16(len(fr.Data)))
		return append(buf, fr.Data...), nil

	case domain.DatasetFileEnd:
		return le.AppendUint32(buf, fr.Size), nil

	case domain.DatasetDone:
		buf = le.AppendUint32(buf, fr.TotalFiles)
		return le.AppendUint64(buf, fr.TotalBytes), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommand, f.Command())
}

// EncodeRawChunk serializes a standalone chunk: the V2 header and payload
// without magic or command byte.
func EncodeRawChunk(ch domain.Chunk) []byte {
	buf := make([]byte, 0, ChunkHeaderSize+len(ch.Data))
	buf = appendChunkHeader(buf, ch)
	return append(buf, ch.Data...)
}

func appendChunkHeader(buf []byte, ch domain.Chunk) []byte {
	buf = le.AppendUint32(buf, ch.Offset)
	buf = le.AppendUint32(buf, ch.Length())
	return le.AppendUint32(buf, ch.CRC)
}

func appendShortString(buf []byte, s string) ([]byte, error) {
	if len(s) > domain.MaxNameLength {
		return nil, fmt.Errorf("%w: name %q longer than %d bytes", domain.ErrIllegalPath, s, domain.MaxNameLength)
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...), nil
}

func encodeStandaloneBegin(sb domain.StandaloneBegin) ([]byte, error) {
	d := sb.Descriptor
	if len(d.Path) > domain.MaxNameLength {
		return nil, fmt.Errorf("%w: name longer than %d bytes", domain.ErrIllegalPath, domain.MaxNameLength)
	}
	buf := make([]byte, 0, len(StandaloneBegin)+16+len(d.Path))
	buf = append(buf, StandaloneBegin...)
	buf = le.AppendUint32(buf, uint32(len(d.Path)))
	buf = append(buf, d.Path...)
	buf = le.AppendUint32(buf, d.Size)
	buf = le.AppendUint32(buf, d.CRC)
	return le.AppendUint32(buf, d.ChunkSize), nil
}
