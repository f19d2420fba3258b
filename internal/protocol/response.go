package protocol

import (
	"strconv"
	"strings"
)

// ResponseKind classifies a textual response line.
type ResponseKind int

const (
	RespReady ResponseKind = iota + 1
	RespReadyV2
	RespAck
	RespNack
	RespOK
	RespError
	RespTransferComplete
	RespDone
)

var responseKeywords = map[string]ResponseKind{
	"READY":             RespReady,
	"READY_V2":          RespReadyV2,
	"ACK":               RespAck,
	"NACK":              RespNack,
	"OK":                RespOK,
	"ERROR":             RespError,
	"TRANSFER_COMPLETE": RespTransferComplete,
	"DONE":              RespDone,
}

// String returns the response keyword.
func (k ResponseKind) String() string {
	for kw, kind := range responseKeywords {
		if kind == k {
			return kw
		}
	}
	return "UNKNOWN"
}

// Response is a parsed response line.
type Response struct {
	Kind ResponseKind

	// Offset is set for "ACK <offset>" and "NACK <offset>".
	Offset    uint32
	HasOffset bool

	// Message holds the trailing text of ERROR and NACK lines.
	Message string
}

// ParseResponse classifies line by its first token. It returns false for
// lines that are peer chatter.
func ParseResponse(line string) (Response, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Response{}, false
	}
	kind, ok := responseKeywords[strings.TrimSuffix(fields[0], ":")]
	if !ok {
		return Response{}, false
	}
	r := Response{Kind: kind}
	rest := fields[1:]

	switch kind {
	case RespAck, RespNack:
		if len(rest) > 0 {
			off, err := strconv.ParseUint(rest[0], 10, 32)
			if err != nil {
				if kind == RespAck {
					// "ACK something" without a number is a plain ACK in V1
					return r, true
				}
				r.Message = strings.Join(rest, " ")
				return r, true
			}
			r.Offset = uint32(off)
			r.HasOffset = true
			rest = rest[1:]
		}
		if kind == RespNack {
			r.Message = strings.Join(rest, " ")
		}
	case RespError:
		r.Message = strings.Join(rest, " ")
	}
	return r, true
}

// String renders the response in wire form without the newline.
func (r Response) String() string {
	var b strings.Builder
	b.WriteString(r.Kind.String())
	if r.HasOffset {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(r.Offset), 10))
	}
	if r.Message != "" {
		b.WriteByte(' ')
		b.WriteString(r.Message)
	}
	return b.String()
}

// Bytes renders the response as a newline-terminated line.
func (r Response) Bytes() []byte {
	return []byte(r.String() + "\n")
}

// Ack builds "ACK" or, with an offset, "ACK <offset>".
func Ack() Response { return Response{Kind: RespAck} }

// AckAt builds "ACK <offset>".
func AckAt(off uint32) Response { return Response{Kind: RespAck, Offset: off, HasOffset: true} }

// NackAt builds "NACK <offset> <reason>".
func NackAt(off uint32, reason string) Response {
	return Response{Kind: RespNack, Offset: off, HasOffset: true, Message: reason}
}

// ErrorResponse builds "ERROR <message>".
func ErrorResponse(msg string) Response { return Response{Kind: RespError, Message: msg} }

// Simple builds a keyword-only response.
func Simple(k ResponseKind) Response { return Response{Kind: k} }
