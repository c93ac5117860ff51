// Package wire implements the YakDB header framing and the
// protocol constants: opcodes, status codes, flag bits and
// structural separator bytes.
package wire

import (
	"fmt"

	"github.com/yakdb/yakdb-go/codec"
)

// Magic and version bytes, present at the start of every request and
// response header frame.
const (
	MagicByte   byte = 0x31
	VersionByte byte = 0x01
)

// Opcode identifies the verb of a request, echoed back in the response
// header's third byte.
type Opcode byte

const (
	OpServerInfo    Opcode = 0x00
	OpOpenTable     Opcode = 0x01
	OpCloseTable    Opcode = 0x02
	OpCompactRange  Opcode = 0x03
	OpTruncateTable Opcode = 0x04
	OpStopServer    Opcode = 0x05
	OpTableInfo     Opcode = 0x06
	OpRead          Opcode = 0x10
	OpCount         Opcode = 0x11
	OpExists        Opcode = 0x12
	OpScan          Opcode = 0x13
	OpList          Opcode = 0x14
	OpPut           Opcode = 0x20
	OpDelete        Opcode = 0x21
	OpDeleteRange   Opcode = 0x22
	OpInitJob       Opcode = 0x42
	OpRequestChunk  Opcode = 0x50

	// OpServerProtocolError is a response-only discriminant signaling a
	// protocol-level server error.
	OpServerProtocolError Opcode = 0xFF
)

func (o Opcode) String() string {
	switch o {
	case OpServerInfo:
		return "ServerInfo"
	case OpOpenTable:
		return "OpenTable"
	case OpCloseTable:
		return "CloseTable"
	case OpCompactRange:
		return "CompactRange"
	case OpTruncateTable:
		return "TruncateTable"
	case OpStopServer:
		return "StopServer"
	case OpTableInfo:
		return "TableInfo"
	case OpRead:
		return "Read"
	case OpCount:
		return "Count"
	case OpExists:
		return "Exists"
	case OpScan:
		return "Scan"
	case OpList:
		return "List"
	case OpPut:
		return "Put"
	case OpDelete:
		return "Delete"
	case OpDeleteRange:
		return "DeleteRange"
	case OpInitJob:
		return "InitJob"
	case OpRequestChunk:
		return "RequestChunk"
	case OpServerProtocolError:
		return "ServerProtocolError"
	}
	return fmt.Sprintf("Opcode(0x%02x)", byte(o))
}

// Status byte values carried in byte 3 of a response header.
const (
	StatusACK     byte = 0x00
	StatusPartial byte = 0x01 // chunk-request only: more data remains
	StatusNoData  byte = 0x02 // chunk-request only: job exhausted
)

// Write-flag bits, packed into byte 3 of a put/delete request header.
const (
	FlagPartSync byte = 1 << 0
	FlagFullSync byte = 1 << 1
)

// FlagInvert is the scan/list request flag bit reversing scan direction.
const FlagInvert byte = 1 << 0

// Structural separator bytes.
const (
	SepPosting        byte = 0x00 // index posting delimiter
	SepEdgeOutgoing   byte = 0x0E // edge "outgoing" marker
	SepEdgeIncoming   byte = 0x0F // edge "incoming" marker
	SepEdgeTerminator byte = 0x10 // edge range terminator (exclusive end)
	SepAttribute      byte = 0x1D // entity / extended-attribute delimiter
	SepLevelToken     byte = 0x1E // level/token or entity/part delimiter
	SepAttrKV         byte = 0x1F // attribute key/value, and type/source, delimiter
)

// IdentifierMin and IdentifierMax bound the legal byte range for any
// identifier (node id, token, attribute key): bytes below IdentifierMin
// are reserved structural separators, and the byte above IdentifierMax
// (0xFF) is reserved for lexicographic successor computation.
const (
	IdentifierMin byte = 0x20
	IdentifierMax byte = 0xFE
)

// CheckIdentifier validates that id consists only of bytes in
// [IdentifierMin, IdentifierMax].
func CheckIdentifier(id []byte) error {
	if len(id) == 0 {
		return fmt.Errorf("wire: identifier must not be empty")
	}
	for _, b := range id {
		if b < IdentifierMin || b > IdentifierMax {
			return fmt.Errorf("wire: identifier byte 0x%02x out of legal range [0x%02x, 0x%02x]", b, IdentifierMin, IdentifierMax)
		}
	}
	return nil
}

// WriteHeader builds a request header frame: magic, version, opcode,
// then a flags byte with bit 0 = partsync and bit 1 = fullsync, followed
// by the opaque requestId tail.
func WriteHeader(opcode Opcode, partsync, fullsync bool, requestID []byte) []byte {
	var flags byte
	if partsync {
		flags |= FlagPartSync
	}
	if fullsync {
		flags |= FlagFullSync
	}
	return buildHeader(opcode, flags, requestID)
}

// WriteScanHeader builds a scan/list request header, whose flags byte
// carries only the invert bit.
func WriteScanHeader(opcode Opcode, invert bool, requestID []byte) []byte {
	var flags byte
	if invert {
		flags |= FlagInvert
	}
	return buildHeader(opcode, flags, requestID)
}

// WritePlainHeader builds a request header with a zero flags byte, for
// verbs that carry no per-request flags.
func WritePlainHeader(opcode Opcode, requestID []byte) []byte {
	return buildHeader(opcode, 0, requestID)
}

func buildHeader(opcode Opcode, flags byte, requestID []byte) []byte {
	b := make([]byte, 4+len(requestID))
	b[0] = MagicByte
	b[1] = VersionByte
	b[2] = byte(opcode)
	b[3] = flags
	copy(b[4:], requestID)
	return b
}

// RangeToFrames canonicalizes a range's start/end keys to frames, using
// an empty frame for a nil endpoint ("beginning of table"/"end of table").
func RangeToFrames(startKey, endKey codec.Value) ([2][]byte, error) {
	var out [2][]byte
	var err error
	out[0], err = endpointFrame(startKey)
	if err != nil {
		return out, fmt.Errorf("wire: start key: %w", err)
	}
	out[1], err = endpointFrame(endKey)
	if err != nil {
		return out, fmt.Errorf("wire: end key: %w", err)
	}
	return out, nil
}

func endpointFrame(v codec.Value) ([]byte, error) {
	if v == nil {
		return []byte{}, nil
	}
	return codec.ToBinary(v)
}

// CheckHeaderFrame validates a response frame sequence's header and
// returns the opaque request-id tail, if any.
//
// A chunk-request reply (expectedOpcode == OpRequestChunk) normalizes
// StatusPartial and StatusNoData to success.
func CheckHeaderFrame(frames [][]byte, expectedOpcode Opcode) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("wire: received empty reply message")
	}
	header := frames[0]
	if len(header) < 4 {
		looksPlausible := len(header) >= 1 && header[0] == MagicByte &&
			(len(header) < 2 || header[1] == VersionByte)
		hint := "it doesn't even look like a header frame"
		if looksPlausible {
			hint = "but it looks like some kind of header frame"
		}
		return nil, fmt.Errorf("wire: response header frame has size %d, expected at least 4 bytes (%s)", len(header), hint)
	}
	if Opcode(header[2]) == OpServerProtocolError {
		return nil, fmt.Errorf("wire: server protocol error")
	}
	if header[2] != byte(expectedOpcode) {
		return nil, fmt.Errorf("wire: response opcode 0x%02x does not match expected 0x%02x", header[2], byte(expectedOpcode))
	}
	status := header[3]
	ok := status == StatusACK
	if expectedOpcode == OpRequestChunk && (status == StatusPartial || status == StatusNoData) {
		ok = true
	}
	if !ok {
		errMsg := "<unknown>"
		if len(frames) >= 2 {
			errMsg = string(frames[1])
		}
		return nil, fmt.Errorf("wire: response status 0x%02x is not ACK, error message: %s", status, errMsg)
	}
	if len(header) > 4 {
		return header[4:], nil
	}
	return nil, nil
}

// LexSuccessor returns a byte string strictly greater than key under
// byte-lexicographic order: the rightmost byte that is not 0xFF is
// incremented; if every byte is 0xFF, a trailing 0x00 is appended.
// Except in the all-0xFF case the result is not the smallest string
// greater than key: "x" yields "y", so strings that extend key (such as
// "x\x00" or "xa") sort below the result.
func LexSuccessor(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out
		}
	}
	return append(out, 0x00)
}
