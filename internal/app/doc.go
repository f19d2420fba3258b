// Package app implements the transfer engine on top of the protocol
// package: the sender-side session controller, negotiator and chunk
// engine, the receiver-side reassembler and dispatch loop, and the
// dataset mirror and streamer.
//
// Every component takes a TransferConfig, a Link and a ports.Clock, so the
// same engine serves V1 and V2 sessions, standalone transfers and
// deterministic tests.
package app
