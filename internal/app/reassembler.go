package app

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bft-labs/serialship/internal/checksum"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
)

// PartSuffix marks files still being received.
const PartSuffix = ".part"

// MirrorMode selects how the reassembler treats size mismatches.
type MirrorMode string

const (
	// ModeMirror keeps a file whose size differs from the declaration and
	// logs a warning.
	ModeMirror MirrorMode = "mirror"

	// ModeSingle removes the partial file on any mismatch.
	ModeSingle MirrorMode = "single"
)

// ReservedFolders are first path segments received but never written.
var ReservedFolders = []string{"_sessions", "_session"}

// ChunkVerdict is the reassembler's decision for an addressed chunk.
type ChunkVerdict int

const (
	// ChunkWritten means the chunk was written and the cursor advanced.
	ChunkWritten ChunkVerdict = iota
	// ChunkDuplicate means the chunk lies below the cursor and was ignored.
	ChunkDuplicate
	// ChunkGap means the chunk lies above the cursor.
	ChunkGap
	// ChunkCorrupt means the payload CRC did not match.
	ChunkCorrupt
)

// FinishResult describes a closed file.
type FinishResult struct {
	Path         string
	Bytes        uint64
	Discarded    bool
	SizeMismatch bool
}

// SafeJoin maps a logical slash-separated path under root. Leading slashes
// are stripped; any ".." segment or a result outside root yields
// ErrIllegalPath. It returns the local path and the cleaned logical path.
func SafeJoin(root, logical string) (string, string, error) {
	p := strings.ReplaceAll(logical, `\`, "/")
	p = strings.TrimLeft(p, "/")
	if p == "" || strings.ContainsRune(p, 0) {
		return "", "", fmt.Errorf("%w: %q", domain.ErrIllegalPath, logical)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", "", fmt.Errorf("%w: %q", domain.ErrIllegalPath, logical)
		}
	}
	clean := path.Clean(p)
	if clean == "." || filepath.VolumeName(filepath.FromSlash(clean)) != "" {
		return "", "", fmt.Errorf("%w: %q", domain.ErrIllegalPath, logical)
	}

	full := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q escapes %s", domain.ErrIllegalPath, logical, root)
	}
	return full, clean, nil
}

// IsReserved reports whether the first segment of a cleaned logical path
// is a reserved folder.
func IsReserved(clean string) bool {
	first, _, _ := strings.Cut(clean, "/")
	for _, r := range ReservedFolders {
		if strings.EqualFold(first, r) {
			return true
		}
	}
	return false
}

type openFile struct {
	desc      domain.FileDescriptor
	logical   string
	final     string
	part      string
	f         *os.File
	cursor    uint32
	hasher    *checksum.Hasher
	verifyCRC bool
}

func (o *openFile) discard() bool { return o.f == nil }

// Reassembler writes incoming files below a root. At most one output file
// is open at a time.
type Reassembler struct {
	root   string
	mode   MirrorMode
	logger ports.Logger
	cur    *openFile
}

// NewReassembler creates a reassembler writing below root.
func NewReassembler(root string, mode MirrorMode, logger ports.Logger) *Reassembler {
	if mode == "" {
		mode = ModeMirror
	}
	return &Reassembler{root: root, mode: mode, logger: logger}
}

// Root returns the output root.
func (r *Reassembler) Root() string { return r.root }

// Open reports whether a file is being received.
func (r *Reassembler) Open() bool { return r.cur != nil }

// Current returns the open descriptor and write cursor.
func (r *Reassembler) Current() (domain.FileDescriptor, uint32, bool) {
	if r.cur == nil {
		return domain.FileDescriptor{}, 0, false
	}
	return r.cur.desc, r.cur.cursor, true
}

// Begin closes any open file and prepares desc for writing. verifyCRC
// enables the whole-file check in Finish.
func (r *Reassembler) Begin(desc domain.FileDescriptor, verifyCRC bool) error {
	r.Abort()

	full, logical, err := SafeJoin(r.root, desc.Path)
	if err != nil {
		return err
	}
	o := &openFile{
		desc:      desc,
		logical:   logical,
		final:     full,
		hasher:    checksum.NewHasher(),
		verifyCRC: verifyCRC,
	}
	if IsReserved(logical) {
		r.logger.Info("discarding reserved path", ports.String("path", logical))
		r.cur = o
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &domain.FileError{Path: logical, Err: err}
	}
	o.part = full + PartSuffix
	f, err := os.OpenFile(o.part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &domain.FileError{Path: logical, Err: err}
	}
	o.f = f
	r.cur = o
	return nil
}

// Accept applies an addressed chunk.
func (r *Reassembler) Accept(ch domain.Chunk) (ChunkVerdict, error) {
	o := r.cur
	if o == nil {
		return ChunkGap, domain.ErrNoSession
	}
	switch {
	case ch.Offset < o.cursor:
		return ChunkDuplicate, nil
	case ch.Offset > o.cursor:
		return ChunkGap, nil
	case o.desc.ChunkSize > 0 && ch.Length() > o.desc.ChunkSize:
		return ChunkCorrupt, fmt.Errorf("%w: chunk of %d bytes exceeds declared chunk size %d", domain.ErrSizeMismatch, ch.Length(), o.desc.ChunkSize)
	case checksum.Sum(ch.Data) != ch.CRC:
		return ChunkCorrupt, nil
	case ch.End() > uint64(o.desc.Size):
		return ChunkCorrupt, fmt.Errorf("%w: chunk ends at %d beyond declared %d", domain.ErrSizeMismatch, ch.End(), o.desc.Size)
	}
	if err := r.write(ch.Data); err != nil {
		return ChunkGap, err
	}
	return ChunkWritten, nil
}

// Append writes b at the cursor.
func (r *Reassembler) Append(b []byte) error {
	if r.cur == nil {
		return domain.ErrNoSession
	}
	return r.write(b)
}

func (r *Reassembler) write(b []byte) error {
	o := r.cur
	if o.f != nil {
		if _, err := o.f.Write(b); err != nil {
			return &domain.FileError{Path: o.logical, Err: err}
		}
	}
	_, _ = o.hasher.Write(b)
	o.cursor += uint32(len(b))
	return nil
}

// Remaining returns the declared bytes not yet received.
func (r *Reassembler) Remaining() uint32 {
	if r.cur == nil || r.cur.cursor >= r.cur.desc.Size {
		return 0
	}
	return r.cur.desc.Size - r.cur.cursor
}

// Complete reports whether the cursor reached the declared size.
func (r *Reassembler) Complete() bool {
	return r.cur != nil && r.cur.cursor >= r.cur.desc.Size
}

// Finish closes the current file. reported is the sender's byte count
// (the declared size when the protocol carries none).
func (r *Reassembler) Finish(reported uint32) (FinishResult, error) {
	o := r.cur
	if o == nil {
		return FinishResult{}, domain.ErrNoSession
	}
	res := FinishResult{Path: o.logical, Bytes: uint64(o.cursor), Discarded: o.discard()}

	var closeErr error
	if o.f != nil {
		closeErr = o.f.Close()
		o.f = nil
	}
	if closeErr != nil {
		r.Abort()
		return res, &domain.FileError{Path: o.logical, Err: closeErr}
	}

	if o.cursor != o.desc.Size || reported != o.cursor {
		res.SizeMismatch = true
		if r.mode == ModeSingle {
			r.Abort()
			return res, &domain.FileError{Path: o.logical, Err: fmt.Errorf("%w: declared %d, reported %d, received %d",
				domain.ErrSizeMismatch, o.desc.Size, reported, o.cursor)}
		}
		r.logger.Warn("size mismatch",
			ports.String("path", o.logical),
			ports.Uint32("declared", o.desc.Size),
			ports.Uint32("reported", reported),
			ports.Uint32("received", o.cursor),
		)
	}

	if o.verifyCRC && !res.SizeMismatch && o.hasher.Sum32() != o.desc.CRC {
		r.Abort()
		return res, &domain.FileError{Path: o.logical, Err: fmt.Errorf("%w: want %08x, got %08x",
			domain.ErrChecksumMismatch, o.desc.CRC, o.hasher.Sum32())}
	}

	if o.part != "" {
		if err := os.Rename(o.part, o.final); err != nil {
			r.Abort()
			return res, &domain.FileError{Path: o.logical, Err: err}
		}
	}
	r.cur = nil
	return res, nil
}

// Abort closes the open file and removes its partial output.
func (r *Reassembler) Abort() {
	o := r.cur
	if o == nil {
		return
	}
	r.cur = nil
	if o.f != nil {
		_ = o.f.Close()
	}
	if o.part != "" {
		if err := os.Remove(o.part); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to remove partial file", ports.String("path", o.part), ports.Err(err))
		}
	}
}

// Close releases the open file, if any.
func (r *Reassembler) Close() error {
	r.Abort()
	return nil
}
