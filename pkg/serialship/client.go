package serialship

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/serialship/internal/adapters/clock"
	"github.com/bft-labs/serialship/internal/adapters/fs"
	"github.com/bft-labs/serialship/internal/adapters/serial"
	"github.com/bft-labs/serialship/internal/app"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/pkg/log"
)

// Client errors.
var (
	ErrNotOpen     = errors.New("client not open")
	ErrAlreadyOpen = errors.New("client already open")
	ErrClosed      = errors.New("client closed")
)

// Re-exported result types.
type (
	// Report is the summary of one session.
	Report = domain.SessionReport

	// Outcome is the result of one file.
	Outcome = domain.TransferOutcome

	// MirrorSummary is the result of a dataset fetch.
	MirrorSummary = app.MirrorSummary

	// FileSpec is one local file and its name on the peer.
	FileSpec = app.FileSpec

	// Bundle is a resolved send target.
	Bundle = app.Bundle
)

// Outcome statuses.
const (
	StatusCompleted = domain.OutcomeCompleted
	StatusFailed    = domain.OutcomeFailed
	StatusSkipped   = domain.OutcomeSkipped
)

// Mirror modes for Receive.
const (
	ModeMirror = app.ModeMirror
	ModeSingle = app.ModeSingle
)

// SendRequest describes one push.
type SendRequest struct {
	// Target is a file, a directory or a model name.
	Target string

	// Output overrides the session name (and a single file's remote name).
	Output string

	// Standalone uses the single-file TRANSFER_V2 exchange instead of a
	// session. Target must resolve to exactly one file.
	Standalone bool
}

// ReceiveConfig configures Receive.
type ReceiveConfig struct {
	Root        string
	Mode        app.MirrorMode
	DatasetRoot string
}

// Client owns one transport and runs transfers over it. Operations are
// serialized: a plugin re-push waits for the running session.
type Client struct {
	cfg      Config
	tcfg     app.TransferConfig
	opts     options
	logger   ports.Logger
	clock    ports.Clock
	events   app.EventHandler
	resolver *app.BundleResolver
	reports  ports.ReportRepository

	mu        sync.Mutex
	transport ports.Transport
	owned     bool
	link      *app.Link
	open      bool
	closed    bool
}

// New creates a Client. It does not touch the port; call Open.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tcfg, err := cfg.transferConfig()
	if err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var logger ports.Logger = log.NewNoopLogger()
	if o.logger != nil {
		logger = o.logger
	}
	var clk ports.Clock = clock.System{}
	if o.clock != nil {
		clk = o.clock
	}
	reports := o.reports
	if reports == nil && cfg.ReportDir != "" {
		reports = fs.NewReportFileRepository(cfg.ReportDir)
	}
	if o.transport == nil && cfg.Port == "" {
		return nil, fmt.Errorf("%w: port is required", domain.ErrInvalidConfig)
	}

	return &Client{
		cfg:      cfg,
		tcfg:     tcfg,
		opts:     o,
		logger:   logger,
		clock:    clk,
		events:   eventAdapter{handler: o.eventHandler},
		resolver: app.NewBundleResolver(cfg.Bundle, logger),
		reports:  reports,
	}, nil
}

// Open opens the transport and initializes plugins.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case c.open:
		return ErrAlreadyOpen
	}

	t := c.opts.transport
	if t == nil {
		port, err := serial.Open(serial.Config{
			Device:   c.cfg.Port,
			BaudRate: c.cfg.BaudRate,
			Settle:   c.cfg.Settle,
		}, c.clock, c.logger)
		if err != nil {
			return err
		}
		t = port
		c.owned = true
	}

	link, err := app.NewLink(t, c.clock, c.tcfg, c.logger)
	if err != nil {
		if c.owned {
			_ = t.Close()
		}
		return err
	}
	c.transport = t
	c.link = link

	pluginCfg := PluginConfig{
		Port:      c.cfg.Port,
		ReportDir: c.cfg.ReportDir,
		Logger:    c.logger,
		Client:    c,
	}
	for i, p := range c.opts.plugins {
		if err := p.Initialize(ctx, pluginCfg); err != nil {
			c.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			c.shutdownPlugins(i)
			c.release()
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		c.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	c.open = true
	return nil
}

// Close shuts plugins down in reverse order and releases the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.open {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Plugins may be waiting on the lock for a re-push.
	c.shutdownPlugins(len(c.opts.plugins))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closed = true
	return c.release()
}

func (c *Client) shutdownPlugins(n int) {
	ctx := context.Background()
	for i := n - 1; i >= 0; i-- {
		p := c.opts.plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			c.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			continue
		}
		c.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
	}
}

func (c *Client) release() error {
	t := c.transport
	c.transport = nil
	c.link = nil
	if t == nil || !c.owned {
		return nil
	}
	return t.Close()
}

// Resolve expands a send target without transferring anything.
func (c *Client) Resolve(target, output string) (Bundle, error) {
	return c.resolver.Resolve(target, output)
}

// Send pushes req.Target. The returned report lists every file, including
// those that failed; err is non-nil when the session did not succeed.
func (c *Client) Send(ctx context.Context, req SendRequest) (Report, error) {
	bundle, err := c.resolver.Resolve(req.Target, req.Output)
	if err != nil {
		return Report{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return Report{}, err
	}

	var report Report
	if req.Standalone {
		report, err = c.sendStandalone(ctx, bundle)
	} else {
		controller := app.NewSessionController(c.link, c.clock, c.tcfg, c.logger, c.events)
		report, err = controller.Run(ctx, bundle.Session, bundle.Files)
	}
	c.save(ctx, report)

	if err == nil && !report.Success() {
		_, failed, _ := report.Counts()
		err = fmt.Errorf("%d of %d files failed", failed, len(report.Outcomes))
	}
	return report, err
}

func (c *Client) sendStandalone(ctx context.Context, bundle Bundle) (Report, error) {
	if len(bundle.Files) != 1 {
		return Report{}, fmt.Errorf("%w: standalone transfer needs exactly one file, got %d", domain.ErrInvalidConfig, len(bundle.Files))
	}
	spec := bundle.Files[0]
	start := c.clock.Now()

	sender := app.NewStandaloneSender(c.link, c.clock, c.tcfg, c.logger, c.events)
	o := sender.Send(ctx, spec)

	report := Report{
		SessionID:  uuid.NewString(),
		Name:       spec.RemoteName,
		Variant:    domain.VariantV2.String(),
		Outcomes:   []Outcome{o},
		Opened:     true,
		Closed:     true,
		StartedAt:  start,
		FinishedAt: c.clock.Now(),
	}
	if !o.OK() {
		report.Error = o.Reason
		if o.Err == nil {
			return report, errors.New(o.Reason)
		}
		return report, o.Err
	}
	return report, nil
}

// Fetch mirrors dataset from the peer into output/<dataset>.
func (c *Client) Fetch(ctx context.Context, dataset, output string) (MirrorSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return MirrorSummary{}, err
	}

	start := c.clock.Now()
	mirror := app.NewMirror(c.link, c.clock, c.tcfg, output, c.logger, c.events)
	summary, err := mirror.Fetch(ctx, dataset)

	report := Report{
		SessionID:  uuid.NewString(),
		Name:       "dataset:" + dataset,
		Variant:    c.tcfg.Variant.String(),
		Outcomes:   summary.Outcomes,
		Opened:     err == nil || !errors.Is(err, domain.ErrSessionNotReady),
		Closed:     err == nil,
		StartedAt:  start,
		FinishedAt: c.clock.Now(),
	}
	if err != nil {
		report.Error = err.Error()
	}
	c.save(ctx, report)

	if err == nil {
		if _, failed, _ := summary.Counts(); failed > 0 {
			err = fmt.Errorf("%d of %d files failed", failed, len(summary.Outcomes))
		}
	}
	return summary, err
}

// Receive answers a sender until ctx is canceled.
func (c *Client) Receive(ctx context.Context, rc ReceiveConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	if rc.Root == "" {
		return fmt.Errorf("%w: receive root is required", domain.ErrInvalidConfig)
	}
	receiver := app.NewReceiver(c.link, c.clock, c.tcfg, app.ReceiverConfig{
		Root:        rc.Root,
		Mode:        rc.Mode,
		DatasetRoot: rc.DatasetRoot,
	}, c.logger, c.events)
	return receiver.Serve(ctx)
}

// LastReport returns the most recently persisted report, if a report
// repository is configured.
func (c *Client) LastReport(ctx context.Context) (Report, error) {
	if c.reports == nil {
		return Report{}, nil
	}
	return c.reports.Load(ctx)
}

func (c *Client) ready() error {
	switch {
	case c.closed:
		return ErrClosed
	case !c.open:
		return ErrNotOpen
	}
	return nil
}

func (c *Client) save(ctx context.Context, report Report) {
	if c.reports == nil || report.SessionID == "" {
		return
	}
	if err := c.reports.Save(context.WithoutCancel(ctx), report); err != nil {
		c.logger.Warn("failed to save session report", ports.Err(err))
	}
}

var _ Sender = (*Client)(nil)
