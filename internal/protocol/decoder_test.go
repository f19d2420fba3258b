package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/serialship/internal/adapters/clock"
	"github.com/bft-labs/serialship/internal/adapters/memlink"
	"github.com/bft-labs/serialship/internal/domain"
)

func newTestDecoder(t *testing.T, variant domain.Variant) (*Decoder, *memlink.Scripted, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(0, 0))
	link := memlink.NewScripted(clk)
	s, err := NewStream(link, clk, 50*time.Millisecond)
	require.NoError(t, err)
	return NewDecoder(s, NewCodec("", variant), 256), link, clk
}

func encode(t *testing.T, c Codec, f domain.Frame) []byte {
	t.Helper()
	b, err := c.Encode(f)
	require.NoError(t, err)
	return b
}

func TestDecoder_ResyncsAfterNoise(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV2)
	var noise []string
	dec.OnNoise = func(line string) { noise = append(noise, line) }

	link.FeedString("rst:0x1 (POWERON_RESET)\r\nboot: ok\r\n\x00\xffESP32_X")
	link.Feed(encode(t, NewCodec("", domain.VariantV2), domain.StartSession{Name: "model_unified"}))

	f, err := dec.Next(context.Background(), clk.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.StartSession{Name: "model_unified"}, f)
	assert.Equal(t, []string{"rst:0x1 (POWERON_RESET)", "boot: ok", "ESP32_X"}, noise)
}

func TestDecoder_V2FileInfoAndChunk(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV2)
	codec := NewCodec("", domain.VariantV2)
	desc := domain.FileDescriptor{Path: "a/b.bin", Size: 300, CRC: 0xDEADBEEF, ChunkSize: 256}
	chunk := domain.Chunk{Offset: 256, Data: []byte("tail"), CRC: 0x01020304}
	link.Feed(encode(t, codec, domain.FileInfo{Descriptor: desc}))
	link.Feed(encode(t, codec, domain.FileChunk{Chunk: chunk}))

	deadline := clk.Now().Add(time.Second)
	f, err := dec.Next(context.Background(), deadline)
	require.NoError(t, err)
	assert.Equal(t, domain.FileInfo{Descriptor: desc}, f)

	f, err = dec.Next(context.Background(), deadline)
	require.NoError(t, err)
	assert.Equal(t, domain.FileChunk{Chunk: chunk}, f)
}

func TestDecoder_V1ChunkUsesExpectedLength(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV1)
	codec := NewCodec("", domain.VariantV1)
	link.Feed(encode(t, codec, domain.FileChunk{Chunk: domain.Chunk{Data: []byte("abcdef")}}))
	link.Feed(encode(t, codec, domain.FileEnd{Size: 6}))

	dec.ExpectChunk(6)
	f, err := dec.Next(context.Background(), clk.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), f.(domain.FileChunk).Chunk.Data)

	f, err = dec.Next(context.Background(), clk.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.FileEnd{Size: 6}, f)
}

func TestDecoder_V1ChunkWithoutFileIsFramingError(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV1)
	link.Feed(encode(t, NewCodec("", domain.VariantV1), domain.FileChunk{Chunk: domain.Chunk{Data: []byte("x")}}))

	_, err := dec.Next(context.Background(), clk.Now().Add(time.Second))
	assert.ErrorIs(t, err, domain.ErrFraming)
}

func TestDecoder_TruncatedPayload(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV2)
	full := encode(t, NewCodec("", domain.VariantV2), domain.FileInfo{Descriptor: domain.FileDescriptor{Path: "x", Size: 10, ChunkSize: 4}})
	link.Feed(full[:len(full)-3])

	_, err := dec.Next(context.Background(), clk.Now().Add(time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFraming)
	assert.ErrorIs(t, err, domain.ErrTransportTimeout)

	var fe *domain.FramingError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.CmdFileInfo, fe.Command)
}

func TestDecoder_UnknownCommandThenResync(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV2)
	link.FeedString(DefaultMagic + "\x7f garbage\n")
	link.Feed(encode(t, NewCodec("", domain.VariantV2), domain.EndSession{}))

	deadline := clk.Now().Add(time.Second)
	_, err := dec.Next(context.Background(), deadline)
	assert.ErrorIs(t, err, domain.ErrFraming)
	assert.ErrorIs(t, err, domain.ErrUnknownCommand)

	f, err := dec.Next(context.Background(), deadline)
	require.NoError(t, err)
	assert.Equal(t, domain.EndSession{}, f)
}

func TestDecoder_OversizedChunkRejected(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV2)
	big := domain.Chunk{Offset: 0, Data: make([]byte, 300)}
	link.Feed(encode(t, NewCodec("", domain.VariantV2), domain.FileChunk{Chunk: big}))

	_, err := dec.Next(context.Background(), clk.Now().Add(time.Second))
	assert.ErrorIs(t, err, domain.ErrFraming)
}

func TestDecoder_TimeoutWithoutMagic(t *testing.T) {
	dec, _, clk := newTestDecoder(t, domain.VariantV2)
	start := clk.Now()

	_, err := dec.Next(context.Background(), start.Add(500*time.Millisecond))
	assert.ErrorIs(t, err, domain.ErrTransportTimeout)
	assert.False(t, clk.Now().Before(start.Add(500*time.Millisecond)))
}

func TestDecoder_DatasetFrames(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV1)
	codec := NewCodec("", domain.VariantV1)
	frames := []domain.Frame{
		domain.DatasetRequest{Name: "walk"},
		domain.DatasetFileInfo{Path: "walk/session_1/data.csv", Size: 3},
		domain.DatasetFileChunk{Data: []byte("1,2")},
		domain.DatasetFileEnd{Size: 3},
		domain.DatasetDone{TotalFiles: 1, TotalBytes: 3},
	}
	for _, f := range frames {
		link.Feed(encode(t, codec, f))
	}
	for _, want := range frames {
		got, err := dec.Next(context.Background(), clk.Now().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecoder_StandaloneExchange(t *testing.T) {
	dec, link, clk := newTestDecoder(t, domain.VariantV2)
	desc := domain.FileDescriptor{Path: "model_dp.csv", Size: 5, CRC: 0xAABBCCDD, ChunkSize: 128}
	link.Feed(encode(t, NewCodec("", domain.VariantV2), domain.StandaloneBegin{Descriptor: desc}))
	link.Feed(EncodeRawChunk(domain.Chunk{Offset: 0, Data: []byte("hello"), CRC: 7}))
	link.FeedString(StandaloneEnd)

	deadline := clk.Now().Add(time.Second)
	f, err := dec.Next(context.Background(), deadline)
	require.NoError(t, err)
	assert.Equal(t, domain.StandaloneBegin{Descriptor: desc}, f)

	ch, end, err := dec.NextRaw(context.Background(), deadline)
	require.NoError(t, err)
	assert.False(t, end)
	assert.Equal(t, []byte("hello"), ch.Data)
	assert.Equal(t, uint32(7), ch.CRC)

	_, end, err = dec.NextRaw(context.Background(), deadline)
	require.NoError(t, err)
	assert.True(t, end)
}

func TestCodec_RejectsLongNames(t *testing.T) {
	long := make([]byte, domain.MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := NewCodec("", domain.VariantV1).Encode(domain.StartSession{Name: string(long)})
	assert.ErrorIs(t, err, domain.ErrIllegalPath)
}
