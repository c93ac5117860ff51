package wire_test

import (
	"bytes"
	"testing"

	"github.com/yakdb/yakdb-go/wire"
)

func TestLexSuccessor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"node:abc", "node:abd"},
		{"node:", "node;"},
		{"node;", "node<"},
		{"x", "y"},
	}
	for _, tt := range tests {
		got := wire.LexSuccessor([]byte(tt.in))
		if string(got) != tt.want {
			t.Errorf("LexSuccessor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	got := wire.LexSuccessor([]byte("node\xFF;"))
	if !bytes.Equal(got, []byte("node\xff<")) {
		t.Errorf("LexSuccessor(node\\xFF;) = %x, want %x", got, "node\xff<")
	}

	got = wire.LexSuccessor([]byte("x\xFF"))
	if !bytes.Equal(got, []byte("y\xff")) {
		t.Errorf("LexSuccessor(x\\xFF) = %x, want %x", got, "y\xff")
	}

	got = wire.LexSuccessor([]byte("\xFF\xFF"))
	if !bytes.Equal(got, []byte("\xFF\xFF\x00")) {
		t.Errorf("LexSuccessor(all-FF) = %x, want trailing 0x00 appended", got)
	}
}

func TestLexSuccessorIsStrictlyGreater(t *testing.T) {
	t.Parallel()

	keys := [][]byte{
		[]byte("a"), []byte("abc"), []byte("\x00"), []byte("\xFE"),
		[]byte("\xFF"), []byte("\xFF\xFF\xFF"), []byte("foo\x1Ebar"),
	}
	for _, k := range keys {
		succ := wire.LexSuccessor(k)
		if bytes.Compare(succ, k) <= 0 {
			t.Errorf("LexSuccessor(%x) = %x is not strictly greater", k, succ)
		}
	}
}

func TestWriteHeader(t *testing.T) {
	t.Parallel()

	h := wire.WriteHeader(wire.OpPut, true, true, []byte{0xBE, 0xEF})
	want := []byte{0x31, 0x01, byte(wire.OpPut), 0x03, 0xBE, 0xEF}
	if !bytes.Equal(h, want) {
		t.Fatalf("WriteHeader = %x, want %x", h, want)
	}

	h = wire.WriteHeader(wire.OpPut, true, false, nil)
	if h[3] != wire.FlagPartSync {
		t.Fatalf("partsync flag not set: %x", h)
	}
	h = wire.WriteHeader(wire.OpPut, false, true, nil)
	if h[3] != wire.FlagFullSync {
		t.Fatalf("fullsync flag not set: %x", h)
	}
}

func TestWriteHeaderThenCheckHeaderFrame_RoundTrips(t *testing.T) {
	t.Parallel()

	for op := range []wire.Opcode{wire.OpRead, wire.OpScan, wire.OpPut, wire.OpCount} {
		opcode := []wire.Opcode{wire.OpRead, wire.OpScan, wire.OpPut, wire.OpCount}[op]
		reqID := []byte{1, 2, 3, 4}
		req := wire.WriteHeader(opcode, false, false, reqID)
		// Simulate a server reply: same opcode, ACK status, echoed request id.
		reply := append([]byte{req[0], req[1], req[2], wire.StatusACK}, reqID...)
		got, err := wire.CheckHeaderFrame([][]byte{reply}, opcode)
		if err != nil {
			t.Fatalf("CheckHeaderFrame: %v", err)
		}
		if !bytes.Equal(got, reqID) {
			t.Fatalf("request id = %x, want %x", got, reqID)
		}
	}
}

func TestCheckHeaderFrame_Failures(t *testing.T) {
	t.Parallel()

	if _, err := wire.CheckHeaderFrame(nil, wire.OpRead); err == nil {
		t.Fatal("expected error on empty frame list")
	}
	if _, err := wire.CheckHeaderFrame([][]byte{{0x31, 0x01, 0x10}}, wire.OpRead); err == nil {
		t.Fatal("expected error on short header frame")
	}
	if _, err := wire.CheckHeaderFrame([][]byte{{0x31, 0x01, byte(wire.OpServerProtocolError), 0x00}}, wire.OpRead); err == nil {
		t.Fatal("expected error on server protocol error opcode")
	}
	if _, err := wire.CheckHeaderFrame([][]byte{{0x31, 0x01, byte(wire.OpPut), 0x00}}, wire.OpRead); err == nil {
		t.Fatal("expected error on opcode mismatch")
	}
	if _, err := wire.CheckHeaderFrame([][]byte{{0x31, 0x01, byte(wire.OpRead), 0x01}, []byte("boom")}, wire.OpRead); err == nil {
		t.Fatal("expected error on non-ACK status")
	}
}

func TestCheckHeaderFrame_ChunkRequestStatusesPass(t *testing.T) {
	t.Parallel()

	for _, status := range []byte{wire.StatusACK, wire.StatusPartial, wire.StatusNoData} {
		header := []byte{0x31, 0x01, byte(wire.OpRequestChunk), status}
		if _, err := wire.CheckHeaderFrame([][]byte{header}, wire.OpRequestChunk); err != nil {
			t.Fatalf("status 0x%02x should pass for chunk requests: %v", status, err)
		}
	}
}

func TestCheckIdentifier(t *testing.T) {
	t.Parallel()

	if err := wire.CheckIdentifier([]byte("validID")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := wire.CheckIdentifier(nil); err == nil {
		t.Fatal("expected error on empty identifier")
	}
	if err := wire.CheckIdentifier([]byte{0x1E}); err == nil {
		t.Fatal("expected error on structural separator byte")
	}
	if err := wire.CheckIdentifier([]byte{0xFF}); err == nil {
		t.Fatal("expected error on reserved 0xFF byte")
	}
}

func TestRangeToFrames(t *testing.T) {
	t.Parallel()

	frames, err := wire.RangeToFrames(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames[0]) != 0 || len(frames[1]) != 0 {
		t.Fatalf("nil endpoints should produce empty frames, got %x / %x", frames[0], frames[1])
	}

	frames, err = wire.RangeToFrames("a", "c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frames[0]) != "a" || string(frames[1]) != "c" {
		t.Fatalf("RangeToFrames(a, c) = %q / %q", frames[0], frames[1])
	}
}
