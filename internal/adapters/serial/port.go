// Package serial implements ports.Transport on top of a host serial device.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/bft-labs/serialship/internal/ports"
)

// DefaultBaudRate matches the UART speed the board firmware opens at boot.
const DefaultBaudRate = 115200

// DefaultSettle is how long to wait after opening the port. Opening toggles
// DTR on most USB bridges, which resets the board.
const DefaultSettle = 2 * time.Second

// Config describes how to open a serial device.
type Config struct {
	// Device is the OS name of the port (/dev/ttyUSB0, COM3).
	Device string

	// BaudRate defaults to DefaultBaudRate.
	BaudRate int

	// Settle is slept after opening before any traffic. Zero skips it.
	Settle time.Duration
}

// Port is a serial device satisfying ports.Transport and ports.InputResetter.
type Port struct {
	device string
	port   serial.Port
}

// Open opens the device 8N1 at the configured baud rate, waits for the board
// to settle and discards whatever it printed while booting.
func Open(cfg Config, clock ports.Clock, logger ports.Logger) (*Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial: no device given")
	}
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	p := &Port{device: cfg.Device, port: sp}
	logger.Info("serial port opened",
		ports.String("device", cfg.Device),
		ports.Int("baud", baud))

	if cfg.Settle > 0 {
		logger.Debug("waiting for board to settle", ports.Duration("settle", cfg.Settle))
		clock.Sleep(cfg.Settle)
	}
	if err := p.ResetInputBuffer(); err != nil {
		_ = sp.Close()
		return nil, err
	}
	return p, nil
}

// Device returns the OS name of the port.
func (p *Port) Device() string { return p.device }

// Read returns (0, nil) when the read timeout elapses without data.
func (p *Port) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes all of b to the device.
func (p *Port) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// SetReadTimeout bounds a single Read.
func (p *Port) SetReadTimeout(d time.Duration) error {
	if err := p.port.SetReadTimeout(d); err != nil {
		return fmt.Errorf("set read timeout on %s: %w", p.device, err)
	}
	return nil
}

// ResetInputBuffer discards bytes received but not yet read.
func (p *Port) ResetInputBuffer() error {
	if err := p.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input on %s: %w", p.device, err)
	}
	return nil
}

// Close releases the device.
func (p *Port) Close() error {
	return p.port.Close()
}

// List returns the serial devices present on the host.
func List() ([]string, error) {
	return serial.GetPortsList()
}

var (
	_ ports.Transport     = (*Port)(nil)
	_ ports.InputResetter = (*Port)(nil)
)
