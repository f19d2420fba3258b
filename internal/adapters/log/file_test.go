package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	pkglog "github.com/bft-labs/serialship/pkg/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_TeesIntoFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "serialship.log")

	l, err := New(Options{Level: "info", Console: &console, File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Debug("hidden")
	l.Info("chunk acknowledged", pkglog.Uint32("offset", 256))
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(console.String(), "chunk acknowledged") {
		t.Errorf("console output missing message: %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"offset":256`) {
		t.Errorf("log file missing JSON field: %q", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("debug message written at info level: %q", data)
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	l, err := New(Options{Level: "debug", Console: &console})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Debug("peer", pkglog.String("line", "boot ok"))
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !strings.Contains(console.String(), "boot ok") {
		t.Errorf("console output missing field: %q", console.String())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "verbose"}); err == nil {
		t.Error("New() with invalid level should fail")
	}
}
