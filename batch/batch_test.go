package batch_test

import (
	"testing"

	"github.com/yakdb/yakdb-go/batch"
	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/transport"
	"github.com/yakdb/yakdb-go/wire"
)

func ackHeader(opcode wire.Opcode) []byte {
	return []byte{wire.MagicByte, wire.VersionByte, byte(opcode), wire.StatusACK}
}

func newConnectedSync(t *testing.T) (*client.Sync, transport.Transport) {
	t.Helper()
	a, b := transport.NewPipePair(transport.RoleRequestReply)
	s, err := client.NewSync(client.WithTransport(a, true))
	if err != nil {
		t.Fatalf("NewSync: %v", err)
	}
	return s, b
}

func TestFlushIssuesExactlyOnePutPerThreshold(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	var putCount int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			req, err := srv.RecvMultipart()
			if err != nil {
				return
			}
			putCount++
			if err := srv.SendMultipart([][]byte{ackHeader(wire.OpPut)}); err != nil {
				return
			}
			_ = req
		}
	}()

	w := batch.New(s, 1, false, false)
	w.Threshold = 2

	for i := 0; i < 5; i++ {
		if err := w.PutSingle([]byte{byte('a' + i)}, []byte("v")); err != nil {
			t.Fatalf("PutSingle: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// 5 entries at threshold 2: flushes at 2, 4, then a final flush of
	// the remaining 1 on Close — 3 put verbs total.
	if putCount != 3 {
		t.Fatalf("putCount = %d, want 3", putCount)
	}
}

func TestFlushIsNoOpWhenEmpty(t *testing.T) {
	t.Parallel()

	s, _ := newConnectedSync(t)
	w := batch.New(s, 1, false, false)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush(empty): %v", err)
	}
}
