package log

import "time"

// Logger provides structured logging capabilities.
// Implementations can wrap zerolog or any other logging library.
type Logger interface {
	// Debug logs a debug-level message with fields.
	Debug(msg string, fields ...Field)

	// Info logs an info-level message with fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning-level message with fields.
	Warn(msg string, fields ...Field)

	// Error logs an error-level message with fields.
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint32 creates a uint32 field. Offsets, lengths and checksums on the wire
// are all 32-bit.
func Uint32(key string, value uint32) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Hex32 creates a field rendered as 0x%08x, used for CRC values.
func Hex32(key string, value uint32) Field {
	return Field{Key: key, Value: hex32(value)}
}

// Bool creates a bool field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

type hex32 uint32

const hexDigits = "0123456789abcdef"

func (h hex32) String() string {
	b := []byte("0x00000000")
	v := uint32(h)
	for i := 9; i >= 2; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b)
}

// NoopLogger discards everything. It is the default for library callers that
// do not pass a logger.
type NoopLogger struct{}

// NewNoopLogger returns a NoopLogger.
func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (NoopLogger) Debug(string, ...Field) {}
func (NoopLogger) Info(string, ...Field)  {}
func (NoopLogger) Warn(string, ...Field)  {}
func (NoopLogger) Error(string, ...Field) {}

var _ Logger = NoopLogger{}
