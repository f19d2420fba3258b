package cliconfig

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "SERIALSHIP_"

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnvConfig applies SERIALSHIP_* environment variables to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	if err := s.setIntFromString("baud", env("BAUD"), &cfg.BaudRate); err != nil {
		return err
	}
	if err := s.setIntFromString("chunk-size", env("CHUNK_SIZE"), &cfg.ChunkSize); err != nil {
		return err
	}
	if err := s.setIntFromString("max-retries", env("MAX_RETRIES"), &cfg.MaxRetries); err != nil {
		return err
	}

	s.setString("variant", env("VARIANT"), &cfg.Variant)
	s.setString("failure-policy", env("FAILURE_POLICY"), &cfg.FailurePolicy)
	s.setString("report-dir", env("REPORT_DIR"), &cfg.ReportDir)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-file", env("LOG_FILE"), &cfg.LogFile)

	if err := s.setDuration("settle", env("SETTLE"), &cfg.Settle); err != nil {
		return err
	}
	if err := s.setDuration("chunk-delay", env("CHUNK_DELAY"), &cfg.ChunkDelay); err != nil {
		return err
	}
	if err := s.setDuration("ack-timeout", env("ACK_TIMEOUT"), &cfg.AckTimeout); err != nil {
		return err
	}
	if err := s.setDuration("handshake-timeout", env("HANDSHAKE_TIMEOUT"), &cfg.Handshake); err != nil {
		return err
	}

	s.setStrings("bundle-dir", splitList(env("BUNDLE_DIRS")), &cfg.Bundle.SearchDirs)
	return nil
}
