package client_test

import (
	"bytes"
	"testing"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
	"github.com/yakdb/yakdb-go/transport"
	"github.com/yakdb/yakdb-go/wire"
)

// fakeServer drains one request from srv and answers with a
// caller-supplied reply, mimicking the minimal synchronous protocol a
// real YakDB server would speak over the Transport interface.
func fakeServer(t *testing.T, srv transport.Transport, reply func(req [][]byte) [][]byte) {
	t.Helper()
	go func() {
		req, err := srv.RecvMultipart()
		if err != nil {
			return
		}
		_ = srv.SendMultipart(reply(req))
	}()
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

func ackHeader(opcode wire.Opcode) []byte {
	return []byte{wire.MagicByte, wire.VersionByte, byte(opcode), wire.StatusACK}
}

func TestServerInfo(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	fakeServer(t, srv, func(req [][]byte) [][]byte {
		return [][]byte{ackHeader(wire.OpServerInfo), []byte("yakdb-1.2.3")}
	})

	version, err := s.ServerInfo()
	if err != nil {
		t.Fatalf("ServerInfo: %v", err)
	}
	if version != "yakdb-1.2.3" {
		t.Fatalf("version = %q, want yakdb-1.2.3", version)
	}
}

func TestReadReturnsEmptyFrameForAbsentKey(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	fakeServer(t, srv, func(req [][]byte) [][]byte {
		return [][]byte{ackHeader(wire.OpRead), []byte("1"), []byte("2"), {}}
	})

	values, err := s.Read(1, []codec.Value{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := [][]byte{[]byte("1"), []byte("2"), {}}
	for i := range want {
		if !bytes.Equal(values[i], want[i]) {
			t.Fatalf("value %d = %q, want %q", i, values[i], want[i])
		}
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	fakeServer(t, srv, func(req [][]byte) [][]byte {
		countFrame, _ := codec.ToBinaryInt64(2)
		return [][]byte{ackHeader(wire.OpCount), countFrame}
	})

	n, err := s.Count(1, nil, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
}

func TestScanReturnsPairsInServerOrder(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	fakeServer(t, srv, func(req [][]byte) [][]byte {
		return [][]byte{ackHeader(wire.OpScan), []byte("a"), []byte("1"), []byte("b"), []byte("2")}
	})

	pairs, err := s.Scan(1, client.ScanOptions{StartKey: "a", EndKey: "c"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pairs) != 2 || string(pairs[0].Key) != "a" || string(pairs[1].Key) != "b" {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}
}

func TestPutEmptyMapIsNoOp(t *testing.T) {
	t.Parallel()

	s, _ := newConnectedSync(t)
	if err := s.Put(1, nil, false, false); err != nil {
		t.Fatalf("Put(empty): %v", err)
	}
}

func TestPutRejectsNullValue(t *testing.T) {
	t.Parallel()

	s, _ := newConnectedSync(t)
	err := s.Put(1, []client.KV{{Key: []byte("a"), Value: nil}}, false, false)
	if err == nil {
		t.Fatal("expected ParameterError for null value")
	}
	var pe *client.ParameterError
	if !errorsAs(err, &pe) {
		t.Fatalf("expected *ParameterError, got %T: %v", err, err)
	}
}

func errorsAs(err error, target **client.ParameterError) bool {
	pe, ok := err.(*client.ParameterError)
	if !ok {
		return false
	}
	*target = pe
	return true
}

func TestRequestChunkDoneOnEmptyData(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	fakeServer(t, srv, func(req [][]byte) [][]byte {
		header := ackHeader(wire.OpRequestChunk)
		header[3] = wire.StatusNoData
		return [][]byte{header}
	})

	data, done, err := s.RequestChunk(42)
	if err != nil {
		t.Fatalf("RequestChunk: %v", err)
	}
	if !done || len(data) != 0 {
		t.Fatalf("expected done with no data, got done=%v data=%v", done, data)
	}
}

func TestCheckConnectionFailsBeforeConnect(t *testing.T) {
	t.Parallel()

	s, err := client.NewSync()
	if err != nil {
		t.Fatalf("NewSync: %v", err)
	}
	if _, err := s.ServerInfo(); err == nil {
		t.Fatal("expected ConnectionStateError before connecting")
	}
}
