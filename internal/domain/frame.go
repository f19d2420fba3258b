package domain

import "fmt"

// Command is the one-byte command identifier that follows the magic.
type Command byte

const (
	CmdStartSession Command = 0x01
	CmdFileInfo     Command = 0x02
	CmdFileChunk    Command = 0x03
	CmdEndSession   Command = 0x04
	CmdFileEnd      Command = 0x05

	CmdDatasetRequest   Command = 0x21
	CmdDatasetFileInfo  Command = 0x22
	CmdDatasetFileChunk Command = 0x23
	CmdDatasetFileEnd   Command = 0x24
	CmdDatasetDone      Command = 0x25

	// CmdStandaloneBegin marks the textual TRANSFER_V2 handshake. It never
	// appears on the wire after a magic.
	CmdStandaloneBegin Command = 0xF0
)

// String returns the protocol name of the command.
func (c Command) String() string {
	switch c {
	case CmdStartSession:
		return "START_SESSION"
	case CmdFileInfo:
		return "FILE_INFO"
	case CmdFileChunk:
		return "FILE_CHUNK"
	case CmdEndSession:
		return "END_SESSION"
	case CmdFileEnd:
		return "FILE_END"
	case CmdDatasetRequest:
		return "DATASET_REQUEST"
	case CmdDatasetFileInfo:
		return "DATASET_FILE_INFO"
	case CmdDatasetFileChunk:
		return "DATASET_FILE_CHUNK"
	case CmdDatasetFileEnd:
		return "DATASET_FILE_END"
	case CmdDatasetDone:
		return "DATASET_DONE"
	case CmdStandaloneBegin:
		return "TRANSFER_V2"
	default:
		return fmt.Sprintf("0x%02X", byte(c))
	}
}

// Frame is a single protocol message. Each command has its own concrete
// type; consumers dispatch with an exhaustive type switch.
type Frame interface {
	Command() Command
}

// StartSession opens a session.
type StartSession struct {
	Name string
}

// FileInfo announces a file inside a session. CRC and ChunkSize are only
// carried by the V2 variant.
type FileInfo struct {
	Descriptor FileDescriptor
}

// FileChunk carries one chunk. In V1 only Data is on the wire; the
// receiver fills Offset from its write cursor.
type FileChunk struct {
	Chunk Chunk
}

// FileEnd is the V1 end-of-file marker carrying the sender's byte count.
type FileEnd struct {
	Size uint32
}

// EndSession closes the session.
type EndSession struct{}

// DatasetRequest asks the peer to stream a dataset tree.
type DatasetRequest struct {
	Name string
}

// DatasetFileInfo starts one file of a dataset stream.
type DatasetFileInfo struct {
	Path string
	Size uint32
}

// DatasetFileChunk carries a length-prefixed slice of the current file.
type DatasetFileChunk struct {
	Data []byte
}

// DatasetFileEnd closes the current dataset file with the peer's count.
type DatasetFileEnd struct {
	Size uint32
}

// DatasetDone terminates a dataset stream.
type DatasetDone struct {
	TotalFiles uint32
	TotalBytes uint64
}

// StandaloneBegin is the single-binary V2 handshake.
type StandaloneBegin struct {
	Descriptor FileDescriptor
}

func (StartSession) Command() Command     { return CmdStartSession }
func (FileInfo) Command() Command         { return CmdFileInfo }
func (FileChunk) Command() Command        { return CmdFileChunk }
func (FileEnd) Command() Command          { return CmdFileEnd }
func (EndSession) Command() Command       { return CmdEndSession }
func (DatasetRequest) Command() Command   { return CmdDatasetRequest }
func (DatasetFileInfo) Command() Command  { return CmdDatasetFileInfo }
func (DatasetFileChunk) Command() Command { return CmdDatasetFileChunk }
func (DatasetFileEnd) Command() Command   { return CmdDatasetFileEnd }
func (DatasetDone) Command() Command      { return CmdDatasetDone }
func (StandaloneBegin) Command() Command  { return CmdStandaloneBegin }
