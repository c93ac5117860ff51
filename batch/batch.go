// Package batch implements the auto-batching writer: puts
// accumulate in memory until a chunk threshold is reached, at which
// point a single multi-pair Put flushes them.
package batch

import (
	"fmt"
	"sync"

	"github.com/yakdb/yakdb-go/client"
	"github.com/yakdb/yakdb-go/codec"
)

// DefaultThreshold is the default chunk size at which Writer
// auto-flushes.
const DefaultThreshold = 2500

// Writer accumulates key/value pairs for one table and flushes them as
// a single Put once the accumulated size reaches Threshold. It is safe
// for concurrent use.
type Writer struct {
	conn      *client.Sync
	table     uint32
	Threshold int
	partsync  bool
	fullsync  bool

	mu   sync.Mutex
	data map[string][]byte
}

// New constructs a Writer with the default threshold.
func New(conn *client.Sync, table uint32, partsync, fullsync bool) *Writer {
	return &Writer{
		conn:      conn,
		table:     table,
		Threshold: DefaultThreshold,
		partsync:  partsync,
		fullsync:  fullsync,
		data:      make(map[string][]byte),
	}
}

// Put merges mapping into the batch, flushing if the threshold is
// reached.
func (w *Writer) Put(mapping map[string][]byte) error {
	w.mu.Lock()
	for k, v := range mapping {
		w.data[k] = v
	}
	size := len(w.data)
	w.mu.Unlock()

	if size >= w.Threshold {
		return w.Flush()
	}
	return nil
}

// PutSingle canonicalizes key and value via the codec package and
// inserts the pair, flushing if the threshold is reached.
func (w *Writer) PutSingle(key, value codec.Value) error {
	k, err := codec.ToBinary(key)
	if err != nil {
		return fmt.Errorf("batch: key: %w", err)
	}
	v, err := codec.ToBinary(value)
	if err != nil {
		return fmt.Errorf("batch: value: %w", err)
	}

	w.mu.Lock()
	w.data[string(k)] = v
	size := len(w.data)
	w.mu.Unlock()

	if size >= w.Threshold {
		return w.Flush()
	}
	return nil
}

// Flush issues one Put for the accumulated batch and clears it. It is
// a no-op when the batch is empty.
func (w *Writer) Flush() error {
	w.mu.Lock()
	if len(w.data) == 0 {
		w.mu.Unlock()
		return nil
	}
	pairs := make([]client.KV, 0, len(w.data))
	for k, v := range w.data {
		pairs = append(pairs, client.KV{Key: []byte(k), Value: v})
	}
	w.data = make(map[string][]byte)
	w.mu.Unlock()

	if err := w.conn.Put(w.table, pairs, w.partsync, w.fullsync); err != nil {
		return fmt.Errorf("batch: flush: %w", err)
	}
	return nil
}

// Close flushes any remaining buffered writes. Callers should defer
// Close immediately after New to guarantee the flush-on-exit discipline
// guaranteed flush on scope exit requires.
func (w *Writer) Close() error {
	return w.Flush()
}
