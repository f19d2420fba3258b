// Package partialcleanup removes stale partial files left by interrupted
// receives and dataset mirrors.
package partialcleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/serialship/pkg/log"
	"github.com/bft-labs/serialship/pkg/serialship"
)

// PartSuffix marks a file still being reassembled.
const PartSuffix = ".part"

// Plugin periodically walks Root and removes *.part files that have not
// been modified for MaxAge.
type Plugin struct {
	mu sync.RWMutex

	root          string
	maxAge        time.Duration
	checkInterval time.Duration
	now           func() time.Time

	logger serialship.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration options for the cleanup plugin.
type Config struct {
	// Root is the directory scanned recursively.
	Root string

	// MaxAge is how long a partial file may sit untouched.
	// Default: 1 hour
	MaxAge time.Duration

	// CheckInterval is how often Root is scanned after the initial scan.
	// Default: 10 minutes
	CheckInterval time.Duration
}

// DefaultConfig returns a Config with defaults for root.
func DefaultConfig(root string) Config {
	return Config{
		Root:          root,
		MaxAge:        time.Hour,
		CheckInterval: 10 * time.Minute,
	}
}

// New creates a cleanup plugin.
func New(cfg Config) *Plugin {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Minute
	}
	return &Plugin{
		root:          cfg.Root,
		maxAge:        cfg.MaxAge,
		checkInterval: cfg.CheckInterval,
		now:           time.Now,
		logger:        log.NewNoopLogger(),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "partialcleanup"
}

// Initialize runs a first scan and starts the periodic loop.
func (p *Plugin) Initialize(ctx context.Context, cfg serialship.PluginConfig) error {
	p.mu.Lock()
	if cfg.Logger != nil {
		p.logger = cfg.Logger
	}
	p.mu.Unlock()

	if p.root == "" {
		p.logger.Warn("partial cleanup disabled: no root configured")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("partial cleanup plugin initialized",
		log.String("root", p.root),
		log.Duration("max_age", p.maxAge))

	p.wg.Add(1)
	go p.cleanupLoop(loopCtx)
	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	p.CleanupOnce(ctx)

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CleanupOnce(ctx)
		}
	}
}

// CleanupOnce removes every stale partial file under Root and returns how
// many were removed.
func (p *Plugin) CleanupOnce(ctx context.Context) int {
	p.mu.RLock()
	logger := p.logger
	p.mu.RUnlock()

	cutoff := p.now().Add(-p.maxAge)
	removed := 0
	var freed int64

	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), PartSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("partial cleanup: remove failed", log.String("path", path), log.Err(err))
			return nil
		}
		removed++
		freed += info.Size()
		logger.Debug("removed stale partial file", log.String("path", path))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("partial cleanup: scan failed", log.Err(err))
	}
	if removed > 0 {
		logger.Info("partial cleanup completed",
			log.Int("files", removed),
			log.Int64("bytes", freed))
	}
	return removed
}

var _ serialship.Plugin = (*Plugin)(nil)
