package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yakdb/yakdb-go/codec"
	"github.com/yakdb/yakdb-go/monitor"
	"github.com/yakdb/yakdb-go/transport"
	"github.com/yakdb/yakdb-go/wire"
)

// Callback receives the reply body frames (header stripped) of an
// asynchronous request, or the error that prevented a result.
type Callback func(body [][]byte, err error)

type pending struct {
	verb     monitor.Verb
	opcode   wire.Opcode
	start    time.Time
	callback Callback
}

// Async is the dealer-role connection: verbs are dispatched the
// same way as Sync, but replies are correlated to outstanding requests
// by a request id rather than read back synchronously. It is
// single-threaded cooperative: exactly one goroutine may
// call Send or Poll on a given Async at a time; the mutex below makes
// that an explicit contract rather than an unstated assumption.
type Async struct {
	*Base
	Sink monitor.Sink

	mu        sync.Mutex
	nextReqID uint32
	pending   map[uint32]pending
}

// NewAsync constructs an unconnected Async connection. The dealer role
// materializes on connect unless WithRole overrides it.
func NewAsync(opts ...Option) (*Async, error) {
	a := &Async{Base: NewBase(), pending: make(map[uint32]pending)}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	a.Sink = cfg.sink
	if cfg.transport != nil {
		role := cfg.role
		if !cfg.roleSet {
			role = transport.RoleDealer
		}
		a.UseTransport(cfg.transport, role, cfg.owned)
		return a, nil
	}
	role := transport.RoleDealer
	if cfg.roleSet {
		role = cfg.role
	}
	if err := a.SetRole(role); err != nil {
		return nil, err
	}
	if cfg.endpoint != "" {
		if err := a.Connect(context.Background(), cfg.endpoint); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Send builds a request header carrying a freshly allocated request
// id, appends frames, and registers cb to run when the matching reply
// arrives via Poll. It returns the allocated request id, which may be
// used to forget the callback (Forget) before the reply arrives.
func (a *Async) Send(verb monitor.Verb, opcode wire.Opcode, frames [][]byte, cb Callback) (reqID uint32, err error) {
	if err := a.checkConnection("async-send"); err != nil {
		return 0, err
	}
	if err := a.checkRequestReply("async-send"); err != nil {
		return 0, err
	}

	a.mu.Lock()
	id := a.nextReqID
	a.nextReqID++
	a.pending[id] = pending{verb: verb, opcode: opcode, start: time.Now(), callback: cb}
	a.mu.Unlock()

	idFrame, _ := codec.ToBinaryUint32(id)
	header := frames[0]
	withID := append(append([]byte{}, header...), idFrame...)
	out := append([][]byte{withID}, frames[1:]...)

	if err := a.sendMultipart(out); err != nil {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
		return 0, err
	}
	return id, nil
}

// Forget drops a pending request without waiting for its reply; the
// eventual reply, if any, is then silently discarded by Poll.
func (a *Async) Forget(reqID uint32) {
	a.mu.Lock()
	delete(a.pending, reqID)
	a.mu.Unlock()
}

// Poll blocks for exactly one reply message, validates and correlates
// it, and dispatches the matching callback. It reports ok=false when
// the reply's request id has no pending entry (already forgotten, or a
// stray reply), which is not itself an error.
func (a *Async) Poll() (ok bool, err error) {
	if err := a.checkSingleConnection("async-poll"); err != nil {
		return false, err
	}
	frames, rerr := a.primary().RecvMultipart()
	if rerr != nil {
		return false, fmt.Errorf("client: async poll: %w", rerr)
	}
	if len(frames) == 0 {
		return false, NewProtocolError("async-poll", "empty reply message")
	}

	header := frames[0]
	reqID, reqIDErr := extractTrailingUint32(header)
	if reqIDErr != nil {
		return false, NewProtocolError("async-poll", reqIDErr.Error())
	}

	a.mu.Lock()
	p, found := a.pending[reqID]
	if found {
		delete(a.pending, reqID)
	}
	a.mu.Unlock()
	if !found {
		return false, nil
	}

	body, cerr := wire.CheckHeaderFrame(frames, p.opcode)
	_ = body
	var verbErr error
	if cerr != nil {
		verbErr = NewProtocolError("async-poll", cerr.Error())
	}
	if a.Sink != nil {
		a.Sink.Observe(monitor.Event{Verb: p.verb, StartTime: p.start, Duration: time.Since(p.start), Err: verbErr})
	}
	if p.callback != nil {
		if verbErr != nil {
			p.callback(nil, verbErr)
		} else {
			p.callback(frames[1:], nil)
		}
	}
	return true, nil
}

// extractTrailingUint32 reads the 4-byte request id appended after the
// fixed 4-byte header.
func extractTrailingUint32(header []byte) (uint32, error) {
	if len(header) < 8 {
		return 0, fmt.Errorf("reply header missing 4-byte request id tail")
	}
	return codec.DecodeUint32(header[4:8])
}
