package serialship

import "context"

// Plugin extends a Client with background behavior.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize is called by Open. Long-running work must be started in
	// a goroutine; Initialize must not call back into Client operations
	// synchronously.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called by Close and must stop all plugin goroutines.
	Shutdown(ctx context.Context) error
}

// Sender is the subset of Client available to plugins.
type Sender interface {
	Resolve(target, output string) (Bundle, error)
	Send(ctx context.Context, req SendRequest) (Report, error)
}

// PluginConfig is what a plugin gets at initialization.
type PluginConfig struct {
	Port      string
	ReportDir string
	Logger    Logger
	Client    Sender
}
