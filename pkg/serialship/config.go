package serialship

import (
	"fmt"
	"time"

	"github.com/bft-labs/serialship/internal/adapters/serial"
	"github.com/bft-labs/serialship/internal/app"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/protocol"
)

// BundleConfig configures how a model name expands into files.
type BundleConfig = app.BundleConfig

// BundleSuffix is one member of a model bundle.
type BundleSuffix = app.BundleSuffix

// DefaultBundleConfig returns the standard model bundle layout.
func DefaultBundleConfig() BundleConfig { return app.DefaultBundleConfig() }

// Config holds the settings of a Client. Zero values are replaced by
// defaults in SetDefaults.
type Config struct {
	// Port is the serial device. Not needed when a transport is injected
	// with WithTransport.
	Port     string
	BaudRate int

	// Settle is slept after opening the port while the board reboots.
	Settle time.Duration

	// Variant is "v1" or "v2".
	Variant string
	Magic   string

	ChunkSize int

	// ChunkDelay is the pause between chunks. Negative disables it.
	ChunkDelay time.Duration
	MaxRetries int

	BackoffBase time.Duration
	BackoffMax  time.Duration

	HandshakeTimeout  time.Duration
	AckTimeout        time.Duration
	CompleteTimeout   time.Duration
	CloseTimeout      time.Duration
	InactivityTimeout time.Duration

	// FailurePolicy is "skip" (default) or "abort".
	FailurePolicy string

	// ReportDir, when set, receives last-session.json after each session.
	ReportDir string

	Bundle BundleConfig
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = serial.DefaultBaudRate
	}
	if c.Variant == "" {
		c.Variant = domain.VariantV2.String()
	}
	if c.Magic == "" {
		c.Magic = protocol.DefaultMagic
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = app.DefaultChunkSize
	}
	if c.ChunkDelay == 0 {
		c.ChunkDelay = app.DefaultChunkDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = app.DefaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = app.DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = app.DefaultBackoffMax
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = app.DefaultHandshakeTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = app.DefaultAckTimeout
	}
	if c.CompleteTimeout <= 0 {
		c.CompleteTimeout = app.DefaultCompleteTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = app.DefaultCloseTimeout
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = app.DefaultInactivityTimeout
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = string(app.PolicySkip)
	}
	if len(c.Bundle.Suffixes) == 0 {
		def := app.DefaultBundleConfig()
		c.Bundle.Suffixes = def.Suffixes
		if len(c.Bundle.SearchDirs) == 0 {
			c.Bundle.SearchDirs = def.SearchDirs
		}
		if c.Bundle.SessionSuffix == "" {
			c.Bundle.SessionSuffix = def.SessionSuffix
		}
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate must be positive", domain.ErrInvalidConfig)
	}
	if c.Settle < 0 {
		return fmt.Errorf("%w: settle must not be negative", domain.ErrInvalidConfig)
	}
	_, err := c.transferConfig()
	return err
}

// transferConfig converts the public settings into the engine's.
func (c Config) transferConfig() (app.TransferConfig, error) {
	variant, err := domain.ParseVariant(c.Variant)
	if err != nil {
		return app.TransferConfig{}, err
	}
	if c.ChunkSize <= 0 || c.ChunkSize > app.MaxChunkSize {
		return app.TransferConfig{}, fmt.Errorf("%w: chunk size must be in 1..%d", domain.ErrInvalidConfig, app.MaxChunkSize)
	}

	tc := app.DefaultTransferConfig()
	tc.Variant = variant
	tc.Magic = c.Magic
	tc.ChunkSize = uint32(c.ChunkSize)
	tc.ChunkDelay = max(c.ChunkDelay, 0)
	tc.MaxRetries = c.MaxRetries
	tc.BackoffBase = c.BackoffBase
	tc.BackoffMax = c.BackoffMax
	tc.HandshakeTimeout = c.HandshakeTimeout
	tc.AckTimeout = c.AckTimeout
	tc.CompleteTimeout = c.CompleteTimeout
	tc.CloseTimeout = c.CloseTimeout
	tc.InactivityTimeout = c.InactivityTimeout
	tc.FailurePolicy = app.FailurePolicy(c.FailurePolicy)
	return tc, tc.Validate()
}
