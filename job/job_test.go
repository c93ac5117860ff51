package job_test

import (
	"testing"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
	"github.com/yakdb/yakdb-go/job"
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

func TestOpenThenDrainChunks(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	go func() {
		if _, err := srv.RecvMultipart(); err != nil {
			return
		}
		apidFrame, _ := codec.ToBinaryInt64(7)
		if err := srv.SendMultipart([][]byte{ackHeader(wire.OpInitJob), apidFrame}); err != nil {
			return
		}
		if _, err := srv.RecvMultipart(); err != nil {
			return
		}
		if err := srv.SendMultipart([][]byte{ackHeader(wire.OpRequestChunk), []byte("row")}); err != nil {
			return
		}
		if _, err := srv.RecvMultipart(); err != nil {
			return
		}
		header := ackHeader(wire.OpRequestChunk)
		header[3] = wire.StatusNoData
		_ = srv.SendMultipart([][]byte{header})
	}()

	j, err := job.Open(s, 1, 100, 0, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if j.APID() != 7 {
		t.Fatalf("APID = %d, want 7", j.APID())
	}

	chunk, err := j.RequestChunk()
	if err != nil {
		t.Fatalf("RequestChunk: %v", err)
	}
	if len(chunk) != 1 || string(chunk[0]) != "row" {
		t.Fatalf("chunk = %v", chunk)
	}
	if j.Done() {
		t.Fatal("expected not done after first chunk")
	}

	chunk, err = j.RequestChunk()
	if err != nil {
		t.Fatalf("RequestChunk: %v", err)
	}
	if len(chunk) != 0 || !j.Done() {
		t.Fatalf("expected done with empty chunk, got chunk=%v done=%v", chunk, j.Done())
	}
}
