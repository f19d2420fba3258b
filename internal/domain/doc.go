// Package domain contains the core entities and value objects of the
// serialship transfer protocol.
//
// This package has no dependencies on infrastructure concerns (serial
// ports, file systems, logging) and holds only protocol vocabulary and
// invariants.
//
// # Entities
//
//   - [Frame]: one protocol message, a tagged variant with one struct per
//     command
//   - [FileDescriptor]: negotiated per-file metadata
//   - [Chunk]: a bounded slice of a file with its checksum
//   - [TransferOutcome]: the per-file result
//   - [Session] and [SessionReport]: the bounded interval between handshake
//     start and end, and its persisted summary
package domain
