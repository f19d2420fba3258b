// Package checksum computes the CRC-32 values carried by FILE_INFO and
// FILE_CHUNK frames.
package checksum

import (
	"hash"
	"hash/crc32"
	"io"
)

// Sum returns the IEEE CRC-32 (zlib/gzip polynomial) of b.
func Sum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Hasher accumulates a whole-file CRC while bytes are streamed.
type Hasher struct {
	h hash.Hash32
	n uint64
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: crc32.NewIEEE()}
}

// Write adds p to the running checksum. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	h.n += uint64(len(p))
	return h.h.Write(p)
}

// Sum32 returns the checksum of everything written so far.
func (h *Hasher) Sum32() uint32 { return h.h.Sum32() }

// Len returns the number of bytes written.
func (h *Hasher) Len() uint64 { return h.n }

// Reset clears the running state.
func (h *Hasher) Reset() {
	h.h.Reset()
	h.n = 0
}

// Reader computes the CRC and length of everything readable from r.
func Reader(r io.Reader) (uint32, uint64, error) {
	h := NewHasher()
	buf := make([]byte, 64<<10)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return 0, 0, err
	}
	return h.Sum32(), h.Len(), nil
}
