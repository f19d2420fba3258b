package domain

import (
	"fmt"
	"strings"
)

// MaxNameLength is the longest session name or session file path; both are
// prefixed by a single length byte on the wire.
const MaxNameLength = 255

// MaxDatasetPathLength is the longest dataset path (u16 length prefix).
const MaxDatasetPathLength = 0xFFFF

// Variant selects the payload framing used for a session.
type Variant uint8

const (
	// VariantV1 uses statically shaped payloads and raw chunks acknowledged
	// by a bare ACK. Chunk loss and corruption are not addressable.
	VariantV1 Variant = 1

	// VariantV2 adds whole-file CRC and chunk size to FILE_INFO and a
	// 12-byte offset/length/crc header to every chunk.
	VariantV2 Variant = 2
)

// String returns "v1" or "v2".
func (v Variant) String() string {
	switch v {
	case VariantV1:
		return "v1"
	case VariantV2:
		return "v2"
	default:
		return fmt.Sprintf("v%d", uint8(v))
	}
}

// ParseVariant accepts "v1", "v2", "1" or "2".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return VariantV1, nil
	case "v2", "2":
		return VariantV2, nil
	}
	return 0, fmt.Errorf("%w: unknown protocol variant %q", ErrInvalidConfig, s)
}

// FileDescriptor is the metadata negotiated before a file's chunks flow.
// It is immutable once acknowledged.
type FileDescriptor struct {
	// Path is the sender-relative logical path.
	Path string

	// Size is the declared byte length.
	Size uint32

	// CRC is the CRC-32 of the whole file (V2 only).
	CRC uint32

	// ChunkSize is the declared maximum chunk payload for this file.
	ChunkSize uint32
}

// ChunkCount returns ceil(Size/ChunkSize).
func (d FileDescriptor) ChunkCount() int {
	if d.Size == 0 || d.ChunkSize == 0 {
		return 0
	}
	return int((uint64(d.Size) + uint64(d.ChunkSize) - 1) / uint64(d.ChunkSize))
}

// Validate checks the descriptor against wire limits.
func (d FileDescriptor) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("%w: empty path", ErrIllegalPath)
	}
	if len(d.Path) > MaxNameLength {
		return fmt.Errorf("%w: path longer than %d bytes", ErrIllegalPath, MaxNameLength)
	}
	if d.Size > 0 && d.ChunkSize == 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	return nil
}

// Chunk is one slice of a file. Offset is absolute within the file.
type Chunk struct {
	Offset uint32
	Data   []byte
	CRC    uint32
}

// Length returns the payload length.
func (c Chunk) Length() uint32 { return uint32(len(c.Data)) }

// End returns the offset just past the chunk. It is widened so a bogus
// offset near the top of the range cannot wrap.
func (c Chunk) End() uint64 { return uint64(c.Offset) + uint64(c.Length()) }
