package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/serialship/internal/adapters/serial"
	"github.com/bft-labs/serialship/internal/app"
	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/pkg/serialship"
)

// Config holds CLI configuration for serialship.
type Config struct {
	BaudRate int
	Settle   time.Duration

	Variant       string
	ChunkSize     int
	ChunkDelay    time.Duration
	MaxRetries    int
	AckTimeout    time.Duration
	Handshake     time.Duration
	FailurePolicy string

	ReportDir string
	LogLevel  string
	LogFile   string

	Bundle app.BundleConfig
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BaudRate:      serial.DefaultBaudRate,
		Settle:        serial.DefaultSettle,
		Variant:       domain.VariantV2.String(),
		ChunkSize:     app.DefaultChunkSize,
		ChunkDelay:    app.DefaultChunkDelay,
		MaxRetries:    app.DefaultMaxRetries,
		AckTimeout:    app.DefaultAckTimeout,
		Handshake:     app.DefaultHandshakeTimeout,
		FailurePolicy: string(app.PolicySkip),
		ReportDir:     DefaultReportDir(),
		LogLevel:      "info",
		Bundle:        app.DefaultBundleConfig(),
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive")
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle must not be negative")
	}
	if _, err := domain.ParseVariant(c.Variant); err != nil {
		return err
	}
	c.Variant = strings.ToLower(strings.TrimSpace(c.Variant))
	if !strings.HasPrefix(c.Variant, "v") {
		c.Variant = "v" + c.Variant
	}
	if c.ChunkSize <= 0 || c.ChunkSize > app.MaxChunkSize {
		return fmt.Errorf("chunk size must be in 1..%d", app.MaxChunkSize)
	}
	if c.ChunkDelay < 0 {
		return fmt.Errorf("chunk delay must not be negative")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	if c.Handshake <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	switch app.FailurePolicy(c.FailurePolicy) {
	case app.PolicySkip, app.PolicyAbort:
	default:
		return fmt.Errorf("failure policy must be %q or %q", app.PolicySkip, app.PolicyAbort)
	}
	if len(c.Bundle.Suffixes) == 0 {
		return fmt.Errorf("bundle needs at least one suffix")
	}
	return nil
}

// Client converts the CLI configuration into a client configuration for
// port.
func (c Config) Client(port string) serialship.Config {
	cfg := serialship.Config{
		Port:             port,
		BaudRate:         c.BaudRate,
		Settle:           c.Settle,
		Variant:          c.Variant,
		ChunkSize:        c.ChunkSize,
		ChunkDelay:       c.ChunkDelay,
		MaxRetries:       c.MaxRetries,
		AckTimeout:       c.AckTimeout,
		HandshakeTimeout: c.Handshake,
		FailurePolicy:    c.FailurePolicy,
		ReportDir:        c.ReportDir,
		Bundle:           c.Bundle,
	}
	if cfg.ChunkDelay == 0 {
		cfg.ChunkDelay = -1
	}
	cfg.SetDefaults()
	return cfg
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setStrings sets a list if non-empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// splitList splits a comma or path-list separated value.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
