package index_test

import (
	"testing"

	"github.com/yakdb/yakdb-go/index"
	"github.com/yakdb/yakdb-go/wire"
)

func TestDefaultExtractorIsStableAndBounded(t *testing.T) {
	t.Parallel()

	id1 := index.DefaultExtractor([]byte(`{"name":"a"}`))
	id2 := index.DefaultExtractor([]byte(`{"name":"a"}`))
	if id1 != id2 {
		t.Fatalf("extractor not stable: %q vs %q", id1, id2)
	}
	if len(id1) > 16 {
		t.Fatalf("extractor id too long: %d", len(id1))
	}
	id3 := index.DefaultExtractor([]byte(`{"name":"b"}`))
	if id1 == id3 {
		t.Fatal("expected different ids for different input")
	}
}

func TestJSONPackerRoundTrips(t *testing.T) {
	t.Parallel()

	p := index.JSONPacker{}
	entity := map[string]any{"name": "alice", "age": float64(30)}
	packed, err := p.Pack(entity)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, err := p.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got["name"] != "alice" || got["age"] != float64(30) {
		t.Fatalf("got %v", got)
	}
}

func TestSearchSingleTokenMultiExactInjectsHitLoc(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)

	// First round trip: index read for token "tok" at level "".
	go func() {
		req, err := srv.RecvMultipart()
		if err != nil {
			return
		}
		_ = req
		if err := srv.SendMultipart([][]byte{ackHeader(wire.OpRead), []byte("e1\x1Epart-a")}); err != nil {
			return
		}
		// Second round trip: entity table read for raw id "e1".
		req, err = srv.RecvMultipart()
		if err != nil {
			return
		}
		_ = req
		_ = srv.SendMultipart([][]byte{ackHeader(wire.OpRead), []byte(`{"name":"x"}`)})
	}()

	idx := index.New(s, 1)
	ei := index.NewEntityIndex(idx, 2, []string{""}, 0, 10)

	out, err := ei.SearchSingleTokenMultiExact([]string{"tok"}, "")
	if err != nil {
		t.Fatalf("SearchSingleTokenMultiExact: %v", err)
	}

	hits := out["tok"]
	if len(hits) != 1 {
		t.Fatalf("hits = %v", hits)
	}
	if hits[0]["name"] != "x" || hits[0]["hitloc"] != "part-a" {
		t.Fatalf("hit = %v", hits[0])
	}
}

func TestResolveDropsEmptyRows(t *testing.T) {
	t.Parallel()

	s, srv := newConnectedSync(t)
	idx := index.New(s, 1)
	ei := index.NewEntityIndex(idx, 2, []string{""}, 2, 10)

	go func() {
		// The index read for "\x1Etok" is answered twice (direct index
		// search, then the entity search), each time with two ids: one
		// present, one with an empty entity row.
		for i := 0; i < 2; i++ {
			if _, err := srv.RecvMultipart(); err != nil {
				return
			}
			if err := srv.SendMultipart([][]byte{ackHeader(wire.OpRead), []byte("present\x00absent")}); err != nil {
				return
			}
		}
		// Entity table read: a row for "present", an empty row for "absent".
		if _, err := srv.RecvMultipart(); err != nil {
			return
		}
		_ = srv.SendMultipart([][]byte{ackHeader(wire.OpRead), []byte(`{"name":"p"}`), {}})
	}()

	byLevel, err := idx.SearchSingleTokenExact("tok", []string{""})
	if err != nil {
		t.Fatalf("SearchSingleTokenExact: %v", err)
	}
	if len(byLevel[""]) != 2 {
		t.Fatalf("byLevel = %v", byLevel)
	}

	entities, err := ei.SearchSingleTokenExact("tok")
	if err != nil {
		t.Fatalf("EntityIndex.SearchSingleTokenExact: %v", err)
	}
	if len(entities) != 1 || entities[0]["name"] != "p" {
		t.Fatalf("entities = %v", entities)
	}
}
