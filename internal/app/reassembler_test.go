package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/serialship/internal/checksum"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/pkg/log"
)

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name    string
		logical string
		want    string
		wantErr bool
	}{
		{"plain", "model_forest.bin", "model_forest.bin", false},
		{"nested", "walk/session_1/data.csv", "walk/session_1/data.csv", false},
		{"leading slash stripped", "/abs/file.bin", "abs/file.bin", false},
		{"dot segments cleaned", "a/./b//c.txt", "a/b/c.txt", false},
		{"parent escape", "../../etc/passwd", "", true},
		{"inner parent", "a/../b", "", true},
		{"backslash parent", `..\windows\system.ini`, "", true},
		{"trailing parent", "a/b/..", "", true},
		{"empty", "", "", true},
		{"only slashes", "///", "", true},
		{"nul byte", "a\x00b", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full, clean, err := SafeJoin(root, tt.logical)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrIllegalPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, clean)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.want)), full)
		})
	}
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("_sessions/a.csv"))
	assert.True(t, IsReserved("_SESSION/a.csv"))
	assert.True(t, IsReserved("_sessions"))
	assert.False(t, IsReserved("walk/_sessions/a.csv"))
	assert.False(t, IsReserved("sessions/a.csv"))
}

func newTestReassembler(t *testing.T, mode MirrorMode) (*Reassembler, string) {
	t.Helper()
	root := t.TempDir()
	return NewReassembler(root, mode, log.NewNoopLogger()), root
}

func chunkOf(off uint32, data []byte) domain.Chunk {
	return domain.Chunk{Offset: off, Data: data, CRC: checksum.Sum(data)}
}

func TestReassembler_AcceptInOrderAndRename(t *testing.T) {
	re, root := newTestReassembler(t, ModeSingle)
	data := pattern(10)
	desc := domain.FileDescriptor{Path: "dir/out.bin", Size: 10, CRC: checksum.Sum(data), ChunkSize: 4}
	require.NoError(t, re.Begin(desc, true))

	for _, off := range []uint32{0, 4, 8} {
		end := off + 4
		if end > 10 {
			end = 10
		}
		v, err := re.Accept(chunkOf(off, data[off:end]))
		require.NoError(t, err)
		assert.Equal(t, ChunkWritten, v)
	}
	assert.True(t, re.Complete())

	res, err := re.Finish(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.Bytes)
	assert.False(t, res.SizeMismatch)

	got, err := os.ReadFile(filepath.Join(root, "dir", "out.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoFileExists(t, filepath.Join(root, "dir", "out.bin"+PartSuffix))
}

func TestReassembler_DuplicateGapCorrupt(t *testing.T) {
	re, root := newTestReassembler(t, ModeSingle)
	data := pattern(8)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "f.bin", Size: 8, CRC: checksum.Sum(data), ChunkSize: 4}, true))

	v, err := re.Accept(chunkOf(4, data[4:]))
	require.NoError(t, err)
	assert.Equal(t, ChunkGap, v)

	bad := chunkOf(0, data[:4])
	bad.CRC ^= 1
	v, err = re.Accept(bad)
	require.NoError(t, err)
	assert.Equal(t, ChunkCorrupt, v)

	v, err = re.Accept(chunkOf(0, data[:4]))
	require.NoError(t, err)
	assert.Equal(t, ChunkWritten, v)

	// a resent chunk is acknowledged but not written twice
	v, err = re.Accept(chunkOf(0, data[:4]))
	require.NoError(t, err)
	assert.Equal(t, ChunkDuplicate, v)

	v, err = re.Accept(chunkOf(4, data[4:]))
	require.NoError(t, err)
	assert.Equal(t, ChunkWritten, v)

	_, err = re.Finish(8)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(root, "f.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReassembler_ChunkBeyondDeclaredSize(t *testing.T) {
	re, _ := newTestReassembler(t, ModeSingle)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "f.bin", Size: 2, ChunkSize: 4}, false))
	_, err := re.Accept(chunkOf(0, []byte("abcd")))
	assert.ErrorIs(t, err, domain.ErrSizeMismatch)
}

func TestReassembler_ChunkLargerThanDeclaredChunkSize(t *testing.T) {
	re, root := newTestReassembler(t, ModeSingle)
	data := pattern(16)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "f.bin", Size: 16, CRC: checksum.Sum(data), ChunkSize: 4}, true))

	v, err := re.Accept(chunkOf(0, data))
	assert.ErrorIs(t, err, domain.ErrSizeMismatch)
	assert.Equal(t, ChunkCorrupt, v)
	_, cursor, open := re.Current()
	assert.True(t, open)
	assert.Zero(t, cursor)

	re.Abort()
	assert.NoFileExists(t, filepath.Join(root, "f.bin"))
}

func TestReassembler_SingleModeSizeMismatchRemovesPartial(t *testing.T) {
	re, root := newTestReassembler(t, ModeSingle)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "f.bin", Size: 10}, false))
	require.NoError(t, re.Append([]byte("short")))

	_, err := re.Finish(10)
	assert.ErrorIs(t, err, domain.ErrSizeMismatch)
	assert.NoFileExists(t, filepath.Join(root, "f.bin"))
	assert.NoFileExists(t, filepath.Join(root, "f.bin"+PartSuffix))
	assert.False(t, re.Open())
}

func TestReassembler_MirrorModeKeepsMismatchedFile(t *testing.T) {
	re, root := newTestReassembler(t, ModeMirror)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "walk/a.csv", Size: 10}, false))
	require.NoError(t, re.Append([]byte("1,2,3")))

	res, err := re.Finish(5)
	require.NoError(t, err)
	assert.True(t, res.SizeMismatch)
	got, err := os.ReadFile(filepath.Join(root, "walk", "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", string(got))
}

func TestReassembler_ChecksumMismatchRemovesFile(t *testing.T) {
	re, root := newTestReassembler(t, ModeMirror)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "f.bin", Size: 3, CRC: 0x12345678}, true))
	require.NoError(t, re.Append([]byte("abc")))

	_, err := re.Finish(3)
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
	assert.NoFileExists(t, filepath.Join(root, "f.bin"))
}

func TestReassembler_ReservedPathIsDiscarded(t *testing.T) {
	re, root := newTestReassembler(t, ModeMirror)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "_sessions/log.txt", Size: 4}, false))
	require.NoError(t, re.Append([]byte("data")))

	res, err := re.Finish(4)
	require.NoError(t, err)
	assert.True(t, res.Discarded)
	assert.Equal(t, uint64(4), res.Bytes)
	assert.NoDirExists(t, filepath.Join(root, "_sessions"))
}

func TestReassembler_IllegalPathWritesNothing(t *testing.T) {
	re, root := newTestReassembler(t, ModeMirror)
	err := re.Begin(domain.FileDescriptor{Path: "../../etc/passwd", Size: 4}, false)
	assert.ErrorIs(t, err, domain.ErrIllegalPath)
	assert.False(t, re.Open())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReassembler_BeginClosesPreviousFile(t *testing.T) {
	re, root := newTestReassembler(t, ModeMirror)
	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "first.bin", Size: 4}, false))
	require.NoError(t, re.Append([]byte("ab")))

	require.NoError(t, re.Begin(domain.FileDescriptor{Path: "second.bin", Size: 0}, false))
	assert.NoFileExists(t, filepath.Join(root, "first.bin"+PartSuffix))

	_, err := re.Finish(0)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "second.bin"))
	require.NoError(t, re.Close())
}
