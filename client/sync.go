package client

import (
	"context"
	"fmt"
	"time"

	"github.com/yakdb/yakdb-go/codec"
	"github.com/yakdb/yakdb-go/monitor"
	"github.com/yakdb/yakdb-go/transport"
	"github.com/yakdb/yakdb-go/wire"
)

// KV is an ordered key/value pair, used wherever the protocol requires
// a specific frame order (put, scan results).
type KV struct {
	Key   []byte
	Value []byte
}

// ScanOptions configures a scan or list verb invocation.
type ScanOptions struct {
	StartKey   codec.Value
	EndKey     codec.Value
	Limit      *int64 // nil = no limit
	Skip       *int64 // nil = 0
	KeyFilter  []byte
	ValueFilter []byte
	Invert     bool
}

// OpenTableOptions carries the modern named-parameter OpenTable form
// Zero-value fields are omitted from the request.
type OpenTableOptions struct {
	LRUCacheSize          *uint64
	Blocksize             *uint64
	WriteBufferSize       *uint64
	BloomFilterBitsPerKey *uint64
	MergeOperator         string // REPLACE, INT64ADD, DMUL, APPEND, NULAPPEND, ...
	CompressionMode       string // NONE, SNAPPY, ZLIB, BZIP2, LZ4, LZ4HC
}

// Sync is the synchronous, blocking connection: one method per
// protocol verb. It is not safe for concurrent use from multiple
// goroutines without external serialization.
type Sync struct {
	*Base
	Sink monitor.Sink
}

// NewSync constructs an unconnected Sync connection. Apply Options to
// connect immediately, or call Connect/UseTransport afterward.
func NewSync(opts ...Option) (*Sync, error) {
	s := &Sync{Base: NewBase()}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	s.Sink = cfg.sink
	if cfg.transport != nil {
		role := cfg.role
		if role == 0 && !cfg.roleSet {
			role = transport.RoleRequestReply
		}
		s.UseTransport(cfg.transport, role, cfg.owned)
		return s, nil
	}
	if cfg.roleSet {
		if err := s.SetRole(cfg.role); err != nil {
			return nil, err
		}
	}
	if cfg.endpoint != "" {
		if err := s.Connect(context.Background(), cfg.endpoint); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sync) report(verb monitor.Verb, table uint32, hasTable bool, start time.Time, err error) {
	if s.Sink == nil {
		return
	}
	s.Sink.Observe(monitor.Event{
		Verb:      verb,
		Table:     table,
		HasTable:  hasTable,
		StartTime: start,
		Duration:  time.Since(start),
		Err:       err,
	})
}

// roundTrip sends frames and, for request-reply role, reads and
// validates the reply header, returning its frames (header included).
func (s *Sync) roundTrip(op string, opcode wire.Opcode, frames [][]byte) ([][]byte, error) {
	if err := s.checkConnection(op); err != nil {
		return nil, err
	}
	replyExpected := s.Role() == transport.RoleRequestReply || s.Role() == transport.RoleDealer
	if replyExpected {
		if err := s.checkSingleConnection(op); err != nil {
			return nil, err
		}
	}
	if err := s.sendMultipart(frames); err != nil {
		return nil, err
	}
	if !replyExpected {
		return nil, nil
	}
	reply, err := s.primary().RecvMultipart()
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", op, err)
	}
	if _, err := wire.CheckHeaderFrame(reply, opcode); err != nil {
		return nil, NewProtocolError(op, err.Error())
	}
	return reply, nil
}

func tableFrame(table uint32) ([]byte, error) {
	return codec.ToBinaryUint32(table)
}

// ServerInfo requests the server's version string (opcode 0x00).
func (s *Sync) ServerInfo() (version string, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbServerInfo, 0, false, start, err) }()

	if err = s.checkRequestReply("server-info"); err != nil {
		return "", err
	}
	header := wire.WritePlainHeader(wire.OpServerInfo, nil)
	reply, rtErr := s.roundTrip("server-info", wire.OpServerInfo, [][]byte{header})
	if rtErr != nil {
		return "", rtErr
	}
	if len(reply) < 2 {
		return "", NewProtocolError("server-info", "missing version string frame")
	}
	return string(reply[1]), nil
}

// OpenTableLegacy opens a table using the legacy no-compression-bit
// header form.
func (s *Sync) OpenTableLegacy(table uint32, noCompression bool) (err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbOpenTable, table, true, start, err) }()

	if err = s.checkRequestReply("open-table"); err != nil {
		return err
	}
	var flags byte
	if noCompression {
		flags = 1
	}
	header := buildFlagHeader(wire.OpOpenTable, flags, nil)
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return NewParameterError("open-table", ferr.Error())
	}
	_, err = s.roundTrip("open-table", wire.OpOpenTable, [][]byte{header, tf})
	return err
}

func buildFlagHeader(opcode wire.Opcode, flags byte, requestID []byte) []byte {
	b := make([]byte, 4+len(requestID))
	b[0] = wire.MagicByte
	b[1] = wire.VersionByte
	b[2] = byte(opcode)
	b[3] = flags
	copy(b[4:], requestID)
	return b
}

// OpenTable opens a table using the modern named-option form:
// table number followed by (name, value) frame pairs.
func (s *Sync) OpenTable(table uint32, opts OpenTableOptions) (err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbOpenTable, table, true, start, err) }()

	if err = s.checkRequestReply("open-table"); err != nil {
		return err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return NewParameterError("open-table", ferr.Error())
	}
	frames := [][]byte{wire.WritePlainHeader(wire.OpOpenTable, nil), tf}
	frames = appendOption(frames, "LRUCacheSize", opts.LRUCacheSize)
	frames = appendOption(frames, "Blocksize", opts.Blocksize)
	frames = appendOption(frames, "WriteBufferSize", opts.WriteBufferSize)
	frames = appendOption(frames, "BloomFilterBitsPerKey", opts.BloomFilterBitsPerKey)
	if opts.MergeOperator != "" {
		frames = append(frames, []byte("MergeOperator"), []byte(opts.MergeOperator))
	}
	if opts.CompressionMode != "" {
		frames = append(frames, []byte("CompressionMode"), []byte(opts.CompressionMode))
	}
	_, err = s.roundTrip("open-table", wire.OpOpenTable, frames)
	return err
}

func appendOption(frames [][]byte, name string, v *uint64) [][]byte {
	if v == nil {
		return frames
	}
	return append(frames, []byte(name), []byte(fmt.Sprintf("%d", *v)))
}

// CloseTable closes table (opcode 0x02). The reply is an ACK header
// with no body; any deviation is a protocol error.
func (s *Sync) CloseTable(table uint32) (err error) {
	return s.simpleTableVerb(monitor.VerbCloseTable, wire.OpCloseTable, table)
}

// TruncateTable truncates table (opcode 0x04).
func (s *Sync) TruncateTable(table uint32) (err error) {
	return s.simpleTableVerb(monitor.VerbTruncateTable, wire.OpTruncateTable, table)
}

func (s *Sync) simpleTableVerb(verb monitor.Verb, opcode wire.Opcode, table uint32) (err error) {
	start := time.Now()
	defer func() { s.report(verb, table, true, start, err) }()

	if err = s.checkRequestReply(verb.String()); err != nil {
		return err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return NewParameterError(verb.String(), ferr.Error())
	}
	header := wire.WritePlainHeader(opcode, nil)
	_, err = s.roundTrip(verb.String(), opcode, [][]byte{header, tf})
	return err
}

// CompactRange compacts [startKey, endKey) of table (opcode 0x03).
func (s *Sync) CompactRange(table uint32, startKey, endKey codec.Value) (err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbCompactRange, table, true, start, err) }()

	if err = s.checkRequestReply("compact-range"); err != nil {
		return err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return NewParameterError("compact-range", ferr.Error())
	}
	rng, rerr := wire.RangeToFrames(startKey, endKey)
	if rerr != nil {
		return NewParameterError("compact-range", rerr.Error())
	}
	header := wire.WritePlainHeader(wire.OpCompactRange, nil)
	_, err = s.roundTrip("compact-range", wire.OpCompactRange, [][]byte{header, tf, rng[0], rng[1]})
	return err
}

// StopServer requests server shutdown (opcode 0x05, no body).
func (s *Sync) StopServer() (err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbStopServer, 0, false, start, err) }()

	if err = s.checkRequestReply("stop-server"); err != nil {
		return err
	}
	header := wire.WritePlainHeader(wire.OpStopServer, nil)
	_, err = s.roundTrip("stop-server", wire.OpStopServer, [][]byte{header})
	return err
}

// TableInfo returns the server's raw info frames for table (opcode
// 0x06); the body shape beyond the header is server-defined.
func (s *Sync) TableInfo(table uint32) (info [][]byte, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbTableInfo, table, true, start, err) }()

	if err = s.checkRequestReply("table-info"); err != nil {
		return nil, err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return nil, NewParameterError("table-info", ferr.Error())
	}
	header := wire.WritePlainHeader(wire.OpTableInfo, nil)
	reply, rtErr := s.roundTrip("table-info", wire.OpTableInfo, [][]byte{header, tf})
	if rtErr != nil {
		return nil, rtErr
	}
	if len(reply) > 1 {
		return reply[1:], nil
	}
	return nil, nil
}

// Read fetches the values of keys in table, in the same order; an
// absent key yields an empty value frame (opcode 0x10).
func (s *Sync) Read(table uint32, keys []codec.Value) (values [][]byte, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbRead, table, true, start, err) }()

	if err = s.checkRequestReply("read"); err != nil {
		return nil, err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return nil, NewParameterError("read", ferr.Error())
	}
	keyFrames, kerr := encodeKeys("read", keys)
	if kerr != nil {
		return nil, kerr
	}
	header := wire.WritePlainHeader(wire.OpRead, nil)
	frames := append([][]byte{header, tf}, keyFrames...)
	reply, rtErr := s.roundTrip("read", wire.OpRead, frames)
	if rtErr != nil {
		return nil, rtErr
	}
	return reply[1:], nil
}

// ReadMap is Read with mapKeys=true: results are returned keyed by the
// string form of each input key rather than positionally.
func (s *Sync) ReadMap(table uint32, keys []codec.Value) (map[string][]byte, error) {
	values, err := s.Read(table, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for i, k := range keys {
		kb, err := codec.ToBinary(k)
		if err != nil {
			return nil, NewParameterError("read", err.Error())
		}
		out[string(kb)] = values[i]
	}
	return out, nil
}

func encodeKeys(op string, keys []codec.Value) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if k == nil {
			return nil, NewParameterError(op, "key must not be null")
		}
		b, err := codec.ToBinary(k)
		if err != nil {
			return nil, NewParameterError(op, err.Error())
		}
		out[i] = b
	}
	return out, nil
}

// Count returns the number of records in [startKey, endKey) of table
// (opcode 0x11).
func (s *Sync) Count(table uint32, startKey, endKey codec.Value) (count int64, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbCount, table, true, start, err) }()

	if err = s.checkRequestReply("count"); err != nil {
		return 0, err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return 0, NewParameterError("count", ferr.Error())
	}
	rng, rerr := wire.RangeToFrames(startKey, endKey)
	if rerr != nil {
		return 0, NewParameterError("count", rerr.Error())
	}
	header := wire.WritePlainHeader(wire.OpCount, nil)
	reply, rtErr := s.roundTrip("count", wire.OpCount, [][]byte{header, tf, rng[0], rng[1]})
	if rtErr != nil {
		return 0, rtErr
	}
	if len(reply) < 2 {
		return 0, NewProtocolError("count", "missing count frame")
	}
	n, derr := codec.DecodeInt64(reply[1])
	if derr != nil {
		return 0, NewProtocolError("count", derr.Error())
	}
	return n, nil
}

// Exists reports, for each key, whether it is present in table (opcode
// 0x12).
func (s *Sync) Exists(table uint32, keys []codec.Value) (present []bool, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbExists, table, true, start, err) }()

	if err = s.checkRequestReply("exists"); err != nil {
		return nil, err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return nil, NewParameterError("exists", ferr.Error())
	}
	keyFrames, kerr := encodeKeys("exists", keys)
	if kerr != nil {
		return nil, kerr
	}
	header := wire.WritePlainHeader(wire.OpExists, nil)
	frames := append([][]byte{header, tf}, keyFrames...)
	reply, rtErr := s.roundTrip("exists", wire.OpExists, frames)
	if rtErr != nil {
		return nil, rtErr
	}
	out := make([]bool, len(reply)-1)
	for i, f := range reply[1:] {
		out[i] = len(f) > 0 && f[0] != 0x00
	}
	return out, nil
}

func scanFrames(opcode wire.Opcode, table uint32, opts ScanOptions) ([][]byte, error) {
	tf, err := tableFrame(table)
	if err != nil {
		return nil, NewParameterError("scan", err.Error())
	}
	var limitFrame []byte
	if opts.Limit != nil {
		limitFrame, _ = codec.ToBinaryInt64(*opts.Limit)
	}
	rng, rerr := wire.RangeToFrames(opts.StartKey, opts.EndKey)
	if rerr != nil {
		return nil, NewParameterError("scan", rerr.Error())
	}
	var skip int64
	if opts.Skip != nil {
		skip = *opts.Skip
	}
	skipFrame, _ := codec.ToBinaryInt64(skip)
	header := wire.WriteScanHeader(opcode, opts.Invert, nil)
	return [][]byte{header, tf, limitFrame, rng[0], rng[1], opts.KeyFilter, opts.ValueFilter, skipFrame}, nil
}

// Scan returns key/value pairs in [StartKey, EndKey) of table,
// honoring Limit/Skip/filters/Invert (opcode 0x13).
func (s *Sync) Scan(table uint32, opts ScanOptions) (pairs []KV, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbScan, table, true, start, err) }()

	if err = s.checkRequestReply("scan"); err != nil {
		return nil, err
	}
	frames, ferr := scanFrames(wire.OpScan, table, opts)
	if ferr != nil {
		return nil, ferr
	}
	header := frames[0]
	reply, rtErr := s.roundTrip("scan", wire.OpScan, frames)
	_ = header
	if rtErr != nil {
		return nil, rtErr
	}
	body := reply[1:]
	if len(body)%2 != 0 {
		return nil, NewProtocolError("scan", "odd number of key/value frames in reply")
	}
	pairs = make([]KV, 0, len(body)/2)
	for i := 0; i < len(body); i += 2 {
		pairs = append(pairs, KV{Key: body[i], Value: body[i+1]})
	}
	return pairs, nil
}

// List is Scan restricted to keys only (opcode 0x14).
func (s *Sync) List(table uint32, opts ScanOptions) (keys [][]byte, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbList, table, true, start, err) }()

	if err = s.checkRequestReply("list"); err != nil {
		return nil, err
	}
	frames, ferr := scanFrames(wire.OpList, table, opts)
	if ferr != nil {
		return nil, ferr
	}
	reply, rtErr := s.roundTrip("list", wire.OpList, frames)
	if rtErr != nil {
		return nil, rtErr
	}
	return reply[1:], nil
}

// Put writes pairs to table (opcode 0x20). An empty pairs slice is a
// no-op, not an error. In push/publish role no reply is awaited.
func (s *Sync) Put(table uint32, pairs []KV, partsync, fullsync bool) (err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbPut, table, true, start, err) }()

	if len(pairs) == 0 {
		return nil
	}
	if err = s.checkConnection("put"); err != nil {
		return err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return NewParameterError("put", ferr.Error())
	}
	frames := make([][]byte, 0, 2+2*len(pairs))
	frames = append(frames, wire.WriteHeader(wire.OpPut, partsync, fullsync, nil), tf)
	for _, kv := range pairs {
		if kv.Key == nil || kv.Value == nil {
			return NewParameterError("put", "key and value must not be null")
		}
		frames = append(frames, kv.Key, kv.Value)
	}
	_, err = s.roundTrip("put", wire.OpPut, frames)
	return err
}

// PutMap is Put taking an unordered key/value map for convenience;
// iteration order of the wire frames is unspecified.
func (s *Sync) PutMap(table uint32, values map[string][]byte, partsync, fullsync bool) error {
	pairs := make([]KV, 0, len(values))
	for k, v := range values {
		pairs = append(pairs, KV{Key: []byte(k), Value: v})
	}
	return s.Put(table, pairs, partsync, fullsync)
}

// Delete removes keys from table (opcode 0x21).
func (s *Sync) Delete(table uint32, keys []codec.Value, partsync, fullsync bool) (err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbDelete, table, true, start, err) }()

	if len(keys) == 0 {
		return nil
	}
	if err = s.checkConnection("delete"); err != nil {
		return err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return NewParameterError("delete", ferr.Error())
	}
	keyFrames, kerr := encodeKeys("delete", keys)
	if kerr != nil {
		return kerr
	}
	header := wire.WriteHeader(wire.OpDelete, partsync, fullsync, nil)
	frames := append([][]byte{header, tf}, keyFrames...)
	_, err = s.roundTrip("delete", wire.OpDelete, frames)
	return err
}

// DeleteRange removes up to limit records from [startKey, endKey) of
// table (opcode 0x22). A nil limit means unbounded.
func (s *Sync) DeleteRange(table uint32, startKey, endKey codec.Value, limit *int64) (err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbDeleteRange, table, true, start, err) }()

	if err = s.checkRequestReply("delete-range"); err != nil {
		return err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return NewParameterError("delete-range", ferr.Error())
	}
	rng, rerr := wire.RangeToFrames(startKey, endKey)
	if rerr != nil {
		return NewParameterError("delete-range", rerr.Error())
	}
	var limitFrame []byte
	if limit != nil {
		limitFrame, _ = codec.ToBinaryInt64(*limit)
	}
	header := wire.WritePlainHeader(wire.OpDeleteRange, nil)
	_, err = s.roundTrip("delete-range", wire.OpDeleteRange, [][]byte{header, tf, rng[0], rng[1], limitFrame})
	return err
}

// InitJob opens a server-side passive job over [startKey, endKey) of
// table, pulled in chunkSize-sized pages up to scanLimit total records
// (opcode 0x42). Returns the opaque APID.
func (s *Sync) InitJob(table uint32, chunkSize, scanLimit int64, startKey, endKey codec.Value) (apid int64, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbInitJob, table, true, start, err) }()

	if err = s.checkRequestReply("init-job"); err != nil {
		return 0, err
	}
	tf, ferr := tableFrame(table)
	if ferr != nil {
		return 0, NewParameterError("init-job", ferr.Error())
	}
	chunkFrame, _ := codec.ToBinaryInt64(chunkSize)
	limitFrame, _ := codec.ToBinaryInt64(scanLimit)
	rng, rerr := wire.RangeToFrames(startKey, endKey)
	if rerr != nil {
		return 0, NewParameterError("init-job", rerr.Error())
	}
	header := wire.WritePlainHeader(wire.OpInitJob, nil)
	reply, rtErr := s.roundTrip("init-job", wire.OpInitJob, [][]byte{header, tf, chunkFrame, limitFrame, rng[0], rng[1]})
	if rtErr != nil {
		return 0, rtErr
	}
	if len(reply) < 2 {
		return 0, NewProtocolError("init-job", "missing APID frame")
	}
	apid, derr := codec.DecodeInt64(reply[1])
	if derr != nil {
		return 0, NewProtocolError("init-job", derr.Error())
	}
	return apid, nil
}

// RequestChunk pulls the next chunk of job apid (opcode 0x50). A
// status of partial or no-data is normalized to success; done reports
// whether the data frames were empty (job exhausted).
func (s *Sync) RequestChunk(apid int64) (data [][]byte, done bool, err error) {
	start := time.Now()
	defer func() { s.report(monitor.VerbRequestChunk, 0, false, start, err) }()

	if err = s.checkRequestReply("request-chunk"); err != nil {
		return nil, false, err
	}
	apidFrame, _ := codec.ToBinaryInt64(apid)
	header := wire.WritePlainHeader(wire.OpRequestChunk, nil)
	reply, rtErr := s.roundTrip("request-chunk", wire.OpRequestChunk, [][]byte{header, apidFrame})
	if rtErr != nil {
		return nil, false, rtErr
	}
	data = reply[1:]
	return data, len(data) == 0, nil
}
