package serialship_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/serialship"
	"github.com/bft-labs/serialship/internal/adapters/memlink"
	client "github.com/bft-labs/serialship/pkg/serialship"
)

func serve(t *testing.T, cfg serialship.Config, rc client.ReceiveConfig) client.Option {
	t.Helper()
	host, peer := memlink.Pipe()

	receiver, err := client.New(cfg, client.WithTransport(peer))
	require.NoError(t, err)
	require.NoError(t, receiver.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = receiver.Receive(ctx, rc)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		_ = receiver.Close()
		_ = host.Close()
	})
	return client.WithTransport(host)
}

func testConfig() serialship.Config {
	cfg := serialship.DefaultConfig()
	cfg.ChunkSize = 64
	cfg.ChunkDelay = -1
	cfg.AckTimeout = 2 * time.Second
	return cfg
}

func TestPush(t *testing.T) {
	cfg := testConfig()
	src, dst := t.TempDir(), t.TempDir()
	file := filepath.Join(src, "gesture_forest.bin")
	require.NoError(t, os.WriteFile(file, []byte("forest bytes"), 0o644))

	report, err := serialship.Push(context.Background(), cfg, file,
		serve(t, cfg, client.ReceiveConfig{Root: dst}))
	require.NoError(t, err)
	assert.True(t, report.Success())

	got, err := os.ReadFile(filepath.Join(dst, report.Name, "gesture_forest.bin"))
	require.NoError(t, err)
	assert.Equal(t, "forest bytes", string(got))
}

func TestPull(t *testing.T) {
	cfg := testConfig()
	datasets, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(datasets, "walk", "session_1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(datasets, "walk", "session_1", "acc.csv"), []byte("1,2,3\n"), 0o644))

	summary, err := serialship.Pull(context.Background(), cfg, "walk", out,
		serve(t, cfg, client.ReceiveConfig{Root: t.TempDir(), DatasetRoot: datasets}))
	require.NoError(t, err)
	completed, failed, _ := summary.Counts()
	assert.Equal(t, 1, completed)
	assert.Zero(t, failed)

	got, err := os.ReadFile(filepath.Join(out, "walk", "session_1", "acc.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1,2,3\n", string(got))
}

func TestPush_RequiresPort(t *testing.T) {
	_, err := serialship.Push(context.Background(), serialship.DefaultConfig(), "mnist")
	assert.Error(t, err)
}
