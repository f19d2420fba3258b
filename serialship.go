// Package serialship pushes files to a microcontroller over a serial link
// and mirrors recorded datasets back.
//
// Example usage:
//
//	cfg := serialship.DefaultConfig()
//	cfg.Port = "/dev/ttyUSB0"
//	report, err := serialship.Push(context.Background(), cfg, "mnist")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Counts())
//
// Long-running callers that need plugins or events should use the
// pkg/serialship Client directly.
package serialship

import (
	"context"

	"github.com/bft-labs/serialship/pkg/serialship"
)

// Config holds the connection and transfer settings.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = serialship.Config

// Report summarizes one session: every file's outcome and the session flags.
type Report = serialship.Report

// MirrorSummary is the result of Pull.
type MirrorSummary = serialship.MirrorSummary

// DefaultConfig returns a Config with sensible default values.
// At minimum, set Port before calling Push or Pull.
func DefaultConfig() Config {
	return serialship.DefaultConfig()
}

// Push opens the port, sends target (a file, directory or model name) as one
// session and closes the port.
func Push(ctx context.Context, cfg Config, target string, opts ...serialship.Option) (Report, error) {
	client, err := serialship.New(cfg, opts...)
	if err != nil {
		return Report{}, err
	}
	if err := client.Open(ctx); err != nil {
		return Report{}, err
	}
	defer client.Close()

	return client.Send(ctx, serialship.SendRequest{Target: target})
}

// Pull opens the port, mirrors dataset into output/<dataset> and closes the
// port.
func Pull(ctx context.Context, cfg Config, dataset, output string, opts ...serialship.Option) (MirrorSummary, error) {
	client, err := serialship.New(cfg, opts...)
	if err != nil {
		return MirrorSummary{}, err
	}
	if err := client.Open(ctx); err != nil {
		return MirrorSummary{}, err
	}
	defer client.Close()

	return client.Fetch(ctx, dataset, output)
}
