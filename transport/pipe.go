package transport

import (
	"fmt"
	"sync"
)

// pipeEnd is one side of an in-memory Transport double for tests:
// writes on one end are readable as complete multipart messages on the
// other end. It implements the same request/response pairing a real
// socket gives the client packages, without opening a network
// connection.
type pipeEnd struct {
	peer *pipeEnd

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][][]byte
	closed bool

	recvMu sync.Mutex
	recvFn func(frames [][]byte)
}

// NewPipePair returns two connected Transport ends: writes on one are
// visible to reads (or a registered Recv callback) on the other.
func NewPipePair(role Role) (a, b Transport) {
	ea := &pipeEnd{}
	eb := &pipeEnd{}
	ea.cond = sync.NewCond(&ea.mu)
	eb.cond = sync.NewCond(&eb.mu)
	ea.peer = eb
	eb.peer = ea
	return ea, eb
}

func (p *pipeEnd) Send(frame []byte, more bool) error {
	return p.SendMultipart([][]byte{frame})
}

func (p *pipeEnd) SendMultipart(frames [][]byte) error {
	target := p.peer
	cp := make([][]byte, len(frames))
	for i, f := range frames {
		b := make([]byte, len(f))
		copy(b, f)
		cp[i] = b
	}

	target.mu.Lock()
	if target.closed {
		target.mu.Unlock()
		return fmt.Errorf("transport: pipe closed")
	}
	target.recvMu.Lock()
	fn := target.recvFn
	target.recvMu.Unlock()
	if fn != nil {
		target.mu.Unlock()
		fn(cp)
		return nil
	}
	target.queue = append(target.queue, cp)
	target.cond.Signal()
	target.mu.Unlock()
	return nil
}

func (p *pipeEnd) RecvMultipart() ([][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, fmt.Errorf("transport: pipe closed")
	}
	frames := p.queue[0]
	p.queue = p.queue[1:]
	return frames, nil
}

func (p *pipeEnd) Recv(fn func(frames [][]byte)) {
	p.recvMu.Lock()
	p.recvFn = fn
	p.recvMu.Unlock()

	if fn == nil {
		return
	}
	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()
	for _, frames := range pending {
		fn(frames)
	}
}

func (p *pipeEnd) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}
