// Package log provides the structured logging abstraction used across
// serialship.
//
// Components never import a logging library directly; they accept a
// [Logger] and emit [Field] values. A zerolog-backed implementation and a
// no-op implementation are provided.
//
// # Usage
//
//	logger := log.NewZerolog(zerolog.New(os.Stderr))
//	logger.Info("chunk acknowledged", log.Uint32("offset", 256))
//
// For tests and library callers that want silence:
//
//	logger := log.NewNoopLogger()
package log
