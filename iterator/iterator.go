// Package iterator implements the lazy, chunk-on-demand sequences over
// scan, list and passive-job endpoints: KeyValueIterator,
// KeyIterator and JobIterator. Each is a small state machine with
// states {Initial, ChunkReady, Drained}; none are restartable once
// Drained.
package iterator

import (
	"fmt"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
	"github.com/yakdb/yakdb-go/wire"
)

type state int

const (
	stateInitial state = iota
	stateChunkReady
	stateDrained
)

// KeyValueIterator pages a scan with a fixed chunkSize, advancing the
// start key to the lexicographic successor of the last key returned
// after each chunk. It terminates on the first chunk with zero
// records.
type KeyValueIterator struct {
	conn      *client.Sync
	table     uint32
	chunkSize int64
	endKey    codec.Value
	keyFilter []byte
	valFilter []byte
	invert    bool

	state   state
	nextKey codec.Value
	buf     []client.KV
	pos     int
}

// NewKeyValueIterator begins a paginated scan of [startKey, endKey) of
// table, pulling chunkSize records per page.
func NewKeyValueIterator(conn *client.Sync, table uint32, startKey, endKey codec.Value, chunkSize int64, keyFilter, valFilter []byte, invert bool) *KeyValueIterator {
	return &KeyValueIterator{
		conn:      conn,
		table:     table,
		chunkSize: chunkSize,
		endKey:    endKey,
		keyFilter: keyFilter,
		valFilter: valFilter,
		invert:    invert,
		nextKey:   startKey,
	}
}

// Next returns the next key/value pair, or ok=false once the
// underlying scan is exhausted.
func (it *KeyValueIterator) Next() (kv client.KV, ok bool, err error) {
	for {
		switch it.state {
		case stateDrained:
			return client.KV{}, false, nil
		case stateInitial, stateChunkReady:
			if it.pos < len(it.buf) {
				kv := it.buf[it.pos]
				it.pos++
				return kv, true, nil
			}
			if it.state == stateChunkReady && len(it.buf) == 0 {
				it.state = stateDrained
				return client.KV{}, false, nil
			}
			if err := it.fetch(); err != nil {
				return client.KV{}, false, err
			}
		}
	}
}

func (it *KeyValueIterator) fetch() error {
	limit := it.chunkSize
	pairs, err := it.conn.Scan(it.table, client.ScanOptions{
		StartKey:    it.nextKey,
		EndKey:      it.endKey,
		Limit:       &limit,
		KeyFilter:   it.keyFilter,
		ValueFilter: it.valFilter,
		Invert:      it.invert,
	})
	if err != nil {
		return fmt.Errorf("iterator: scan chunk: %w", err)
	}
	it.buf = pairs
	it.pos = 0
	it.state = stateChunkReady
	if len(pairs) == 0 {
		it.state = stateDrained
		return nil
	}
	last := pairs[len(pairs)-1].Key
	it.nextKey = wire.LexSuccessor(last)
	return nil
}

// KeyIterator is KeyValueIterator restricted to the list verb, and
// yields keys only.
type KeyIterator struct {
	conn      *client.Sync
	table     uint32
	chunkSize int64
	endKey    codec.Value
	keyFilter []byte
	valFilter []byte
	invert    bool

	state   state
	nextKey codec.Value
	buf     [][]byte
	pos     int
}

// NewKeyIterator begins a paginated list of [startKey, endKey) of
// table, pulling chunkSize keys per page.
func NewKeyIterator(conn *client.Sync, table uint32, startKey, endKey codec.Value, chunkSize int64, keyFilter, valFilter []byte, invert bool) *KeyIterator {
	return &KeyIterator{
		conn:      conn,
		table:     table,
		chunkSize: chunkSize,
		endKey:    endKey,
		keyFilter: keyFilter,
		valFilter: valFilter,
		invert:    invert,
		nextKey:   startKey,
	}
}

// Next returns the next key, or ok=false once the underlying list is
// exhausted.
func (it *KeyIterator) Next() (key []byte, ok bool, err error) {
	for {
		switch it.state {
		case stateDrained:
			return nil, false, nil
		case stateInitial, stateChunkReady:
			if it.pos < len(it.buf) {
				k := it.buf[it.pos]
				it.pos++
				return k, true, nil
			}
			if it.state == stateChunkReady && len(it.buf) == 0 {
				it.state = stateDrained
				return nil, false, nil
			}
			if err := it.fetch(); err != nil {
				return nil, false, err
			}
		}
	}
}

func (it *KeyIterator) fetch() error {
	limit := it.chunkSize
	keys, err := it.conn.List(it.table, client.ScanOptions{
		StartKey:    it.nextKey,
		EndKey:      it.endKey,
		Limit:       &limit,
		KeyFilter:   it.keyFilter,
		ValueFilter: it.valFilter,
		Invert:      it.invert,
	})
	if err != nil {
		return fmt.Errorf("iterator: list chunk: %w", err)
	}
	it.buf = keys
	it.pos = 0
	it.state = stateChunkReady
	if len(keys) == 0 {
		it.state = stateDrained
		return nil
	}
	it.nextKey = wire.LexSuccessor(keys[len(keys)-1])
	return nil
}

// JobIterator repeatedly pulls chunks from an already-initialized
// passive job until the server signals an empty chunk.
type JobIterator struct {
	conn  *client.Sync
	apid  int64
	state state
	buf   [][]byte
	pos   int
}

// NewJobIterator wraps a passive job identified by apid (see
// Sync.InitJob).
func NewJobIterator(conn *client.Sync, apid int64) *JobIterator {
	return &JobIterator{conn: conn, apid: apid}
}

// Next returns the next raw data frame from the job, or ok=false once
// the job reports no more data.
func (it *JobIterator) Next() (frame []byte, ok bool, err error) {
	for {
		switch it.state {
		case stateDrained:
			return nil, false, nil
		case stateInitial, stateChunkReady:
			if it.pos < len(it.buf) {
				f := it.buf[it.pos]
				it.pos++
				return f, true, nil
			}
			if it.state == stateChunkReady && len(it.buf) == 0 {
				it.state = stateDrained
				return nil, false, nil
			}
			if err := it.fetch(); err != nil {
				return nil, false, err
			}
		}
	}
}

func (it *JobIterator) fetch() error {
	data, done, err := it.conn.RequestChunk(it.apid)
	if err != nil {
		return fmt.Errorf("iterator: request job chunk: %w", err)
	}
	it.buf = data
	it.pos = 0
	it.state = stateChunkReady
	if done {
		it.state = stateDrained
	}
	return nil
}
