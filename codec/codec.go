// Package codec implements the YakDB scalar-to-binary conversion rules
// the canonical mapping from client-side scalar values to the
// little-endian byte encodings the wire protocol carries.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is the set of Go types convertToBinary accepts.
//
//   - uint32: packed as 4-byte little-endian (used for table numbers,
//     request ids, and other values explicitly flagged "32-bit").
//   - int and int64: packed as 8-byte little-endian signed.
//   - float64: packed as 8-byte little-endian IEEE 754.
//   - string: UTF-8 bytes, passed through.
//   - []byte: passed through unchanged.
//   - []Value, []string, [][]byte: rejected by ToBinary; ToBinaryList
//     converts each element of such a one-level sequence to its own
//     frame.
type Value = any

// ToBinary converts a single scalar to its canonical binary form.
//
// Integers default to the 8-byte signed encoding; callers that need the
// 4-byte "32-bit" encoding (table numbers, request ids) must pass a
// uint32 explicitly, or use ToBinaryUint32.
func ToBinary(v Value) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("codec: nil value is not convertible to binary")
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case uint32:
		return ToBinaryUint32(x)
	case int:
		return ToBinaryInt64(int64(x))
	case int64:
		return ToBinaryInt64(x)
	case float64:
		return ToBinaryFloat64(x)
	default:
		return nil, fmt.Errorf("codec: value of type %T is not convertible to binary", v)
	}
}

// ToBinaryUint32 packs v as 4-byte little-endian, for contexts explicitly
// flagged "32-bit" (table numbers, request ids).
func ToBinaryUint32(v uint32) ([]byte, error) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b, nil
}

// ToBinaryInt64 packs v as 8-byte little-endian signed.
func ToBinaryInt64(v int64) ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b, nil
}

// ToBinaryFloat64 packs v as 8-byte little-endian IEEE 754.
func ToBinaryFloat64(v float64) ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b, nil
}

// ToBinaryList converts value to a sequence of binary frames. A scalar is
// wrapped in a single-element slice; a []Value has each element converted
// independently (one level of recursion, per spec).
func ToBinaryList(value Value) ([][]byte, error) {
	if list, ok := value.([]Value); ok {
		out := make([][]byte, len(list))
		for i, v := range list {
			b, err := ToBinary(v)
			if err != nil {
				return nil, fmt.Errorf("codec: element %d: %w", i, err)
			}
			out[i] = b
		}
		return out, nil
	}
	if list, ok := value.([]string); ok {
		out := make([][]byte, len(list))
		for i, v := range list {
			out[i] = []byte(v)
		}
		return out, nil
	}
	if list, ok := value.([][]byte); ok {
		return list, nil
	}
	b, err := ToBinary(value)
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}

// DecodeUint32 is the inverse of ToBinaryUint32.
func DecodeUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("codec: expected 4-byte frame, got %d bytes", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// DecodeInt64 is the inverse of ToBinaryInt64.
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("codec: expected 8-byte frame, got %d bytes", len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// DecodeFloat64 is the inverse of ToBinaryFloat64.
func DecodeFloat64(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("codec: expected 8-byte frame, got %d bytes", len(b))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}
