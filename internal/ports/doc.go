// Package ports defines the interfaces (ports) that connect the transfer
// engine to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Transport]: the half-duplex byte stream to the peer (serial port,
//     in-memory pipe)
//   - [Clock]: time source and sleeper, injectable for deterministic tests
//   - [ReportRepository]: persists session reports
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them with concrete libraries.
package ports
