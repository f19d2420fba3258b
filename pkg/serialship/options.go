package serialship

import (
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/pkg/log"
)

// Logger is the structured logging interface from pkg/log.
type Logger = log.Logger

// LogField is a structured log field.
type LogField = log.Field

// Transport is the byte stream to the peer. Read must return (0, nil) when
// its read timeout elapses without data.
type Transport = ports.Transport

// Clock is the time source used for timeouts, delays and backoff.
type Clock = ports.Clock

// ReportRepository persists session reports.
type ReportRepository = ports.ReportRepository

// Option configures optional behavior of a Client.
type Option func(*options)

type options struct {
	logger       Logger
	transport    Transport
	clock        Clock
	eventHandler EventHandler
	plugins      []Plugin
	reports      ReportRepository
}

// WithLogger sets the logger. Without it the client is silent.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport uses t instead of opening Config.Port. The caller keeps
// ownership: Close does not close t.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithClock replaces the system clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithEventHandler sets a handler for transfer events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin. Plugins are initialized in registration
// order by Open and shut down in reverse order by Close.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithReportRepository stores session reports in repo instead of the
// file repository derived from Config.ReportDir.
func WithReportRepository(repo ReportRepository) Option {
	return func(o *options) {
		o.reports = repo
	}
}
