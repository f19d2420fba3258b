package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/serialship/internal/app"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Baud          int    `toml:"baud"`
	Settle        string `toml:"settle"`
	Variant       string `toml:"variant"`
	ChunkSize     int    `toml:"chunk_size"`
	ChunkDelay    string `toml:"chunk_delay"`
	MaxRetries    int    `toml:"max_retries"`
	AckTimeout    string `toml:"ack_timeout"`
	Handshake     string `toml:"handshake_timeout"`
	FailurePolicy string `toml:"failure_policy"`
	ReportDir     string `toml:"report_dir"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`

	Bundle BundleFileConfig `toml:"bundle"`
}

// BundleFileConfig is the [bundle] table.
type BundleFileConfig struct {
	SearchDirs    []string           `toml:"search_dirs"`
	SessionSuffix string             `toml:"session_suffix"`
	Suffixes      []app.BundleSuffix `toml:"suffixes"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.serialship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".serialship", "config.toml")
	}
	return ""
}

// DefaultReportDir returns ~/.serialship, where the last session report is
// kept.
func DefaultReportDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".serialship")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setInt("baud", fc.Baud, &cfg.BaudRate)
	s.setString("variant", fc.Variant, &cfg.Variant)
	s.setInt("chunk-size", fc.ChunkSize, &cfg.ChunkSize)
	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setString("failure-policy", fc.FailurePolicy, &cfg.FailurePolicy)
	s.setString("report-dir", fc.ReportDir, &cfg.ReportDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)

	if err := s.setDuration("settle", fc.Settle, &cfg.Settle); err != nil {
		return err
	}
	if err := s.setDuration("chunk-delay", fc.ChunkDelay, &cfg.ChunkDelay); err != nil {
		return err
	}
	if err := s.setDuration("ack-timeout", fc.AckTimeout, &cfg.AckTimeout); err != nil {
		return err
	}
	if err := s.setDuration("handshake-timeout", fc.Handshake, &cfg.Handshake); err != nil {
		return err
	}

	s.setStrings("bundle-dir", fc.Bundle.SearchDirs, &cfg.Bundle.SearchDirs)
	s.setString("session-suffix", fc.Bundle.SessionSuffix, &cfg.Bundle.SessionSuffix)
	if len(fc.Bundle.Suffixes) > 0 {
		cfg.Bundle.Suffixes = append([]app.BundleSuffix(nil), fc.Bundle.Suffixes...)
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
