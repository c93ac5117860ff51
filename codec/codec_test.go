package codec_test

import (
	"bytes"
	"testing"

	"github.com/yakdb/yakdb-go/codec"
)

func TestToBinary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   codec.Value
		want []byte
	}{
		{"uint32", uint32(1), []byte{1, 0, 0, 0}},
		{"uint32 max", uint32(0xFFFFFFFF), []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"int64 positive", int64(1), []byte{1, 0, 0, 0, 0, 0, 0, 0}},
		{"int64 negative", int64(-1), []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"text", "ab", []byte("ab")},
		{"bytes", []byte{1, 2, 3}, []byte{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := codec.ToBinary(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("ToBinary(%v) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}

func TestToBinary_Rejects(t *testing.T) {
	t.Parallel()

	tests := []codec.Value{nil, 3.14 + 1i, struct{}{}}
	for _, in := range tests {
		if _, err := codec.ToBinary(in); err == nil {
			t.Fatalf("ToBinary(%#v): expected error, got nil", in)
		}
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{0, 1, -1, 3.14159, 1e300, -1e-300} {
		b, err := codec.ToBinaryFloat64(v)
		if err != nil {
			t.Fatalf("ToBinaryFloat64: %v", err)
		}
		got, err := codec.DecodeFloat64(b)
		if err != nil {
			t.Fatalf("DecodeFloat64: %v", err)
		}
		if got != v {
			t.Fatalf("round trip %v -> %x -> %v", v, b, got)
		}
	}
}

func TestUint32RoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []uint32{0, 1, 42, 0xFFFFFFFF} {
		b, err := codec.ToBinaryUint32(v)
		if err != nil {
			t.Fatalf("ToBinaryUint32: %v", err)
		}
		got, err := codec.DecodeUint32(b)
		if err != nil {
			t.Fatalf("DecodeUint32: %v", err)
		}
		if got != v {
			t.Fatalf("round trip %d -> %x -> %d", v, b, got)
		}
	}
}

func TestInt64RoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []int64{0, 1, -1, 42, -42, 1 << 62, -(1 << 62)} {
		b, err := codec.ToBinaryInt64(v)
		if err != nil {
			t.Fatalf("ToBinaryInt64: %v", err)
		}
		got, err := codec.DecodeInt64(b)
		if err != nil {
			t.Fatalf("DecodeInt64: %v", err)
		}
		if got != v {
			t.Fatalf("round trip %d -> %x -> %d", v, b, got)
		}
	}
}

func TestToBinaryList(t *testing.T) {
	t.Parallel()

	got, err := codec.ToBinaryList("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || string(got[0]) != "a" {
		t.Fatalf("ToBinaryList(scalar) = %v, want single-element list", got)
	}

	got, err = codec.ToBinaryList([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ToBinaryList([]string) len = %d, want 3", len(got))
	}
}
