package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/serialship/internal/adapters/clock"
	"github.com/bft-labs/serialship/internal/adapters/memlink"
	"github.com/bft-labs/serialship/internal/domain"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		line string
		want Response
		ok   bool
	}{
		{"READY", Response{Kind: RespReady}, true},
		{"READY_V2", Response{Kind: RespReadyV2}, true},
		{"ACK", Response{Kind: RespAck}, true},
		{"ACK 512", Response{Kind: RespAck, Offset: 512, HasOffset: true}, true},
		{"NACK 256 crc", Response{Kind: RespNack, Offset: 256, HasOffset: true, Message: "crc"}, true},
		{"ERROR: file too large", Response{Kind: RespError, Message: "file too large"}, true},
		{"  OK  ", Response{Kind: RespOK}, true},
		{"TRANSFER_COMPLETE", Response{Kind: RespTransferComplete}, true},
		{"DONE", Response{Kind: RespDone}, true},
		{"ACKNOWLEDGED by peer", Response{}, false},
		{"[boot] heap free 123", Response{}, false},
		{"", Response{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseResponse(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponse_String(t *testing.T) {
	assert.Equal(t, "ACK 1024", AckAt(1024).String())
	assert.Equal(t, "NACK 0 gap", NackAt(0, "gap").String())
	assert.Equal(t, "ERROR bad path", ErrorResponse("bad path").String())
	assert.Equal(t, "TRANSFER_COMPLETE\n", string(Simple(RespTransferComplete).Bytes()))
}

func TestStream_ReadLine(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	link := memlink.NewScripted(clk)
	s, err := NewStream(link, clk, 10*time.Millisecond)
	require.NoError(t, err)

	link.FeedString("READY\r\nAC")
	line, err := s.ReadLine(context.Background(), clk.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "READY", line)

	_, err = s.ReadLine(context.Background(), clk.Now().Add(100*time.Millisecond))
	assert.ErrorIs(t, err, domain.ErrTransportTimeout)

	link.FeedString("K 0\n")
	line, err = s.ReadLine(context.Background(), clk.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "ACK 0", line)
}

func TestStream_HonoursContext(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	s, err := NewStream(memlink.NewScripted(clk), clk, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ReadByte(ctx, clk.Now().Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}
