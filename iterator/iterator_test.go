package iterator_test

import (
	"testing"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/iterator"
	"github.com/yakdb/yakdb-go/transport"
	"github.com/yakdb/yakdb-go/wire"
)

func ackHeader(opcode wire.Opcode) []byte {
	return []byte{wire.MagicByte, wire.VersionByte, byte(opcode), wire.StatusACK}
}

// servePages runs a fake server that replies to each scan/list request
// with the next page in pages, mimicking a real YakDB server's
// pagination behavior. Callers end pages with an empty terminal page.
func servePages(t *testing.T, srv transport.Transport, opcode wire.Opcode, pages [][][]byte) {
	t.Helper()
	go func() {
		for _, page := range pages {
			if _, err := srv.RecvMultipart(); err != nil {
				return
			}
			reply := append([][]byte{ackHeader(opcode)}, page...)
			if err := srv.SendMultipart(reply); err != nil {
				return
			}
		}
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

func TestKeyValueIteratorPaginatesAndTerminates(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	pages := [][][]byte{
		{[]byte("a"), []byte("1"), []byte("b"), []byte("2")},
		{}, // terminal empty chunk
	}
	servePages(t, srv, wire.OpScan, pages)

	it := iterator.NewKeyValueIterator(s, 1, "a", "z", 2, nil, nil, false)
	var got []string
	for {
		kv, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, string(kv.Key)+"="+string(kv.Value))
	}
	want := []string{"a=1", "b=2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeyIteratorTerminatesOnEmptyChunk(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	pages := [][][]byte{
		{[]byte("a"), []byte("b")},
		{},
	}
	servePages(t, srv, wire.OpList, pages)

	it := iterator.NewKeyIterator(s, 1, nil, nil, 2, nil, nil, false)
	var keys []string
	for {
		k, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		keys = append(keys, string(k))
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("got %v", keys)
	}
}

func TestJobIteratorTerminatesOnNoData(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	go func() {
		// First RequestChunk: one data frame, status ACK.
		if _, err := srv.RecvMultipart(); err != nil {
			return
		}
		_ = srv.SendMultipart([][]byte{ackHeader(wire.OpRequestChunk), []byte("row1")})
		// Second RequestChunk: empty, status no-data.
		if _, err := srv.RecvMultipart(); err != nil {
			return
		}
		header := ackHeader(wire.OpRequestChunk)
		header[3] = wire.StatusNoData
		_ = srv.SendMultipart([][]byte{header})
	}()

	it := iterator.NewJobIterator(s, 99)
	var frames []string
	for {
		f, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		frames = append(frames, string(f))
	}
	if len(frames) != 1 || frames[0] != "row1" {
		t.Fatalf("got %v", frames)
	}
}
