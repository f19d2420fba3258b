package app

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/serialship/internal/adapters/clock"
	"github.com/bft-labs/serialship/internal/adapters/memlink"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/protocol"
	"github.com/bft-labs/serialship/pkg/log"
)

// testConfig keeps every timeout but shortens polling so that the manual
// clock advances in small steps.
func testConfig(variant domain.Variant) TransferConfig {
	cfg := DefaultTransferConfig()
	cfg.Variant = variant
	cfg.PollInterval = 100 * time.Millisecond
	return cfg
}

func newScripted(t *testing.T, cfg TransferConfig) (*Link, *memlink.Scripted, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := memlink.NewScripted(clk)
	link, err := NewLink(tr, clk, cfg, log.NewNoopLogger())
	require.NoError(t, err)
	return link, tr, clk
}

// sentFrame is a sender write seen by a scripted peer.
type sentFrame struct {
	cmd    domain.Command
	offset uint32
	length uint32
	raw    []byte
}

// parseSent decodes the header of a frame written by the sender.
func parseSent(p []byte, variant domain.Variant) sentFrame {
	magic := len(protocol.DefaultMagic)
	if len(p) <= magic {
		return sentFrame{raw: p}
	}
	sf := sentFrame{cmd: domain.Command(p[magic]), raw: p}
	if sf.cmd == domain.CmdFileChunk {
		body := p[magic+1:]
		if variant == domain.VariantV2 {
			sf.offset = binary.LittleEndian.Uint32(body[0:4])
			sf.length = binary.LittleEndian.Uint32(body[4:8])
		} else {
			sf.length = uint32(len(body))
		}
	}
	return sf
}

// chunkWrites returns the chunk frames among writes.
func chunkWrites(writes [][]byte, variant domain.Variant) []sentFrame {
	var out []sentFrame
	for _, w := range writes {
		if sf := parseSent(w, variant); sf.cmd == domain.CmdFileChunk {
			out = append(out, sf)
		}
	}
	return out
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

// recordingEvents captures events for assertions.
type recordingEvents struct {
	NopEvents
	states []domain.SessionState
	done   []domain.TransferOutcome
}

func (r *recordingEvents) OnSessionState(_, current domain.SessionState, _ string) {
	r.states = append(r.states, current)
}

func (r *recordingEvents) OnFileDone(o domain.TransferOutcome) {
	r.done = append(r.done, o)
}
