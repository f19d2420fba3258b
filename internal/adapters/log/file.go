// Package log builds the process logger: zerolog console output on stderr,
// optionally teed as JSON into a size-rotated log file.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	pkglog "github.com/bft-labs/serialship/pkg/log"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name (debug, info, warn, error).
	Level string

	// Console receives human-readable output. Nil means stderr.
	Console io.Writer

	// File, when set, receives JSON logs rotated by lumberjack.
	File string

	// MaxSizeMB and MaxBackups bound the rotated file set.
	MaxSizeMB  int
	MaxBackups int
}

// Logger is the assembled logger plus the file it owns.
type Logger struct {
	*pkglog.Zerolog
	file io.Closer
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	var file io.Closer
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
		}
		writers = append(writers, rotator)
		file = rotator
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return &Logger{Zerolog: pkglog.NewZerolog(zl), file: file}, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
