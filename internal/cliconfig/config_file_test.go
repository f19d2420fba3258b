package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/serialship/internal/app"
)

func TestApplyFileConfig(t *testing.T) {
	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Baud:          115200,
				Settle:        "500ms",
				Variant:       "v1",
				ChunkSize:     128,
				ChunkDelay:    "5ms",
				MaxRetries:    3,
				AckTimeout:    "2s",
				Handshake:     "4s",
				FailurePolicy: "abort",
				ReportDir:     "/var/lib/serialship",
				LogLevel:      "debug",
				LogFile:       "/var/log/serialship.log",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				BaudRate:      115200,
				Settle:        500 * time.Millisecond,
				Variant:       "v1",
				ChunkSize:     128,
				ChunkDelay:    5 * time.Millisecond,
				MaxRetries:    3,
				AckTimeout:    2 * time.Second,
				Handshake:     4 * time.Second,
				FailurePolicy: "abort",
				ReportDir:     "/var/lib/serialship",
				LogLevel:      "debug",
				LogFile:       "/var/log/serialship.log",
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Baud:      921600,
				ChunkSize: 128,
			},
			changed: map[string]bool{"baud": true},
			initial: Config{
				BaudRate:  115200,
				ChunkSize: 220,
			},
			expected: Config{
				BaudRate:  115200, // unchanged because flag was set
				ChunkSize: 128,
			},
		},
		{
			name:       "empty values keep defaults",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    Config{BaudRate: 115200, Variant: "v2", ChunkDelay: 20 * time.Millisecond},
			expected:   Config{BaudRate: 115200, Variant: "v2", ChunkDelay: 20 * time.Millisecond},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{AckTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyFileConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyFileConfig() unexpected error: %v", err)
				return
			}
			if tt.wantErr {
				return
			}

			// Bundle is compared separately
			cfg.Bundle = app.BundleConfig{}
			if cfg.BaudRate != tt.expected.BaudRate {
				t.Errorf("BaudRate = %v, want %v", cfg.BaudRate, tt.expected.BaudRate)
			}
			if cfg.Settle != tt.expected.Settle {
				t.Errorf("Settle = %v, want %v", cfg.Settle, tt.expected.Settle)
			}
			if cfg.Variant != tt.expected.Variant {
				t.Errorf("Variant = %v, want %v", cfg.Variant, tt.expected.Variant)
			}
			if cfg.ChunkSize != tt.expected.ChunkSize {
				t.Errorf("ChunkSize = %v, want %v", cfg.ChunkSize, tt.expected.ChunkSize)
			}
			if cfg.ChunkDelay != tt.expected.ChunkDelay {
				t.Errorf("ChunkDelay = %v, want %v", cfg.ChunkDelay, tt.expected.ChunkDelay)
			}
			if cfg.MaxRetries != tt.expected.MaxRetries {
				t.Errorf("MaxRetries = %v, want %v", cfg.MaxRetries, tt.expected.MaxRetries)
			}
			if cfg.AckTimeout != tt.expected.AckTimeout {
				t.Errorf("AckTimeout = %v, want %v", cfg.AckTimeout, tt.expected.AckTimeout)
			}
			if cfg.Handshake != tt.expected.Handshake {
				t.Errorf("Handshake = %v, want %v", cfg.Handshake, tt.expected.Handshake)
			}
			if cfg.FailurePolicy != tt.expected.FailurePolicy {
				t.Errorf("FailurePolicy = %v, want %v", cfg.FailurePolicy, tt.expected.FailurePolicy)
			}
			if cfg.ReportDir != tt.expected.ReportDir {
				t.Errorf("ReportDir = %v, want %v", cfg.ReportDir, tt.expected.ReportDir)
			}
			if cfg.LogLevel != tt.expected.LogLevel {
				t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, tt.expected.LogLevel)
			}
			if cfg.LogFile != tt.expected.LogFile {
				t.Errorf("LogFile = %v, want %v", cfg.LogFile, tt.expected.LogFile)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	tomlContent := `
baud = 115200
variant = "v1"
chunk_size = 200
chunk_delay = "10ms"
log_level = "debug"

[bundle]
search_dirs = ["models", "exports"]
session_suffix = "_bundle"

[[bundle.suffixes]]
suffix = "_forest.bin"
required = true
critical = true

[[bundle.suffixes]]
suffix = "_dp.csv"
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.Baud != 115200 {
		t.Errorf("Baud = %v, want 115200", fc.Baud)
	}
	if fc.Variant != "v1" {
		t.Errorf("Variant = %v, want v1", fc.Variant)
	}
	if fc.ChunkDelay != "10ms" {
		t.Errorf("ChunkDelay = %v, want 10ms", fc.ChunkDelay)
	}
	if len(fc.Bundle.SearchDirs) != 2 || fc.Bundle.SearchDirs[1] != "exports" {
		t.Errorf("Bundle.SearchDirs = %v, want [models exports]", fc.Bundle.SearchDirs)
	}
	if len(fc.Bundle.Suffixes) != 2 {
		t.Fatalf("len(Bundle.Suffixes) = %v, want 2", len(fc.Bundle.Suffixes))
	}
	if s := fc.Bundle.Suffixes[0]; s.Suffix != "_forest.bin" || !s.Required || !s.Critical {
		t.Errorf("Bundle.Suffixes[0] = %+v, want required critical _forest.bin", s)
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig() error = %v", err)
	}
	if cfg.Bundle.SessionSuffix != "_bundle" {
		t.Errorf("Bundle.SessionSuffix = %v, want _bundle", cfg.Bundle.SessionSuffix)
	}
	if len(cfg.Bundle.Suffixes) != 2 {
		t.Errorf("len(Bundle.Suffixes) = %v, want 2 (file replaces defaults)", len(cfg.Bundle.Suffixes))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
baud = 115200
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".serialship") {
		t.Errorf("DefaultConfigPath() = %v, should contain .serialship", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
