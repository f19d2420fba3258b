// Package protocol implements the wire format of the transfer protocol:
// magic-prefixed binary command frames from sender to receiver and
// newline-terminated textual responses in the other direction.
//
// A [Stream] wraps a ports.Transport with deadline-bounded reads. The
// [Codec] encodes frames, the [Decoder] scans for the magic and decodes
// frames, resynchronizing after noise or corruption, and [ParseResponse]
// classifies response lines by their first token.
package protocol
