// Package filewatcher re-pushes a send target whenever its local files
// change.
package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/serialship/pkg/log"
	"github.com/bft-labs/serialship/pkg/serialship"
)

// Plugin watches the files a target resolves to and sends the target again
// in a new session after they settle.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	req           serialship.SendRequest
	debounceDelay time.Duration
	retryInterval time.Duration
	maxAttempts   int
	onPush        func(serialship.Report, error)

	// Runtime state
	client serialship.Sender
	logger serialship.Logger
	files  map[string]bool
	dirs   map[string]bool
	tree   string
	model  string
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pushes int
}

// Config holds configuration options for the watcher.
type Config struct {
	// Target, Output and Standalone are passed to Client.Send.
	Target     string
	Output     string
	Standalone bool

	// DebounceDelay is the quiet period after the last change.
	// Default: 500 milliseconds
	DebounceDelay time.Duration

	// RetryInterval is the delay between failed push attempts.
	// Default: 5 seconds
	RetryInterval time.Duration

	// MaxAttempts bounds the attempts per change.
	// Default: 3
	MaxAttempts int

	// OnPush, when set, is called after every push attempt.
	OnPush func(serialship.Report, error)
}

// DefaultConfig returns a Config with defaults for target.
func DefaultConfig(target string) Config {
	return Config{
		Target:        target,
		DebounceDelay: 500 * time.Millisecond,
		RetryInterval: 5 * time.Second,
		MaxAttempts:   3,
	}
}

// New creates a watcher plugin.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 500 * time.Millisecond
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Plugin{
		req: serialship.SendRequest{
			Target:     cfg.Target,
			Output:     cfg.Output,
			Standalone: cfg.Standalone,
		},
		debounceDelay: cfg.DebounceDelay,
		retryInterval: cfg.RetryInterval,
		maxAttempts:   cfg.MaxAttempts,
		onPush:        cfg.OnPush,
		logger:        log.NewNoopLogger(),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "filewatcher"
}

// Initialize resolves the target, registers the watches and starts the
// watch loop.
func (p *Plugin) Initialize(ctx context.Context, cfg serialship.PluginConfig) error {
	if cfg.Client == nil {
		return errors.New("filewatcher: no client")
	}
	if err := p.resolve(cfg.Client); err != nil {
		return err
	}

	p.mu.Lock()
	p.client = cfg.Client
	if cfg.Logger != nil {
		p.logger = cfg.Logger
	}
	p.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatcher: %w", err)
	}
	for dir := range p.dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("filewatcher: watch %s: %w", dir, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("file watcher plugin initialized",
		log.String("target", p.req.Target),
		log.Int("files", len(p.files)),
		log.Int("dirs", len(p.dirs)))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher. A push in progress is canceled.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// Pushes returns the number of completed push attempts.
func (p *Plugin) Pushes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pushes
}

// resolve computes the watched files and directories.
func (p *Plugin) resolve(client serialship.Sender) error {
	bundle, err := client.Resolve(p.req.Target, p.req.Output)
	if err != nil {
		return fmt.Errorf("filewatcher: resolve %s: %w", p.req.Target, err)
	}

	p.files = make(map[string]bool, len(bundle.Files))
	p.dirs = make(map[string]bool)
	for _, f := range bundle.Files {
		abs, err := filepath.Abs(f.LocalPath)
		if err != nil {
			return err
		}
		p.files[abs] = true
		p.dirs[filepath.Dir(abs)] = true
	}

	info, err := os.Stat(p.req.Target)
	switch {
	case err == nil && info.IsDir():
		tree, err := filepath.Abs(p.req.Target)
		if err != nil {
			return err
		}
		p.tree = tree
		// fsnotify is not recursive
		return filepath.WalkDir(tree, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				p.dirs[path] = true
			}
			return nil
		})
	case err != nil:
		p.model = filepath.Base(p.req.Target)
	}
	return nil
}

// relevant reports whether a change to name affects the target.
func (p *Plugin) relevant(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if strings.HasSuffix(abs, ".part") || strings.HasSuffix(abs, "~") {
		return false
	}
	switch {
	case p.files[abs]:
		return true
	case p.tree != "":
		return abs == p.tree || strings.HasPrefix(abs, p.tree+string(filepath.Separator))
	case p.model != "":
		return strings.HasPrefix(filepath.Base(abs), p.model+"_")
	}
	return false
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	timer := time.NewTimer(p.debounceDelay)
	if !timer.Stop() {
		<-timer.C
	}
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !p.relevant(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 && p.tree != "" {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			p.logger.Debug("change detected", log.String("path", event.Name), log.String("op", event.Op.String()))
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.debounceDelay)
			fire = timer.C

		case <-fire:
			fire = nil
			p.push(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("file watcher error", log.Err(err))
		}
	}
}

// push sends the target, retrying up to maxAttempts.
func (p *Plugin) push(ctx context.Context) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		report, err := client.Send(ctx, p.req)

		p.mu.Lock()
		p.pushes++
		p.mu.Unlock()
		if p.onPush != nil {
			p.onPush(report, err)
		}

		if err == nil {
			p.logger.Info("re-pushed changed files",
				log.String("session", report.Name),
				log.Int("files", len(report.Outcomes)))
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("re-push failed",
			log.Int("attempt", attempt),
			log.Err(err))
		if attempt == p.maxAttempts {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}
}

var _ serialship.Plugin = (*Plugin)(nil)
