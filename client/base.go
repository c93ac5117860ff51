// Package client implements the YakDB connection state machine,
// the synchronous verb catalogue and the asynchronous dealer
// connection.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/yakdb/yakdb-go/transport"
)

// DefaultRequestReplyEndpoint and DefaultPushEndpoint are the
// conventional YakDB server endpoints.
const (
	DefaultRequestReplyEndpoint = "tcp://localhost:7100"
	DefaultPushEndpoint         = "tcp://localhost:7101"
)

// dialFunc abstracts transport.DialTCP so tests can inject a Pipe
// without a real network dial.
type dialFunc func(ctx context.Context, endpoint string, role transport.Role) (transport.Transport, error)

func defaultDial(ctx context.Context, endpoint string, role transport.Role) (transport.Transport, error) {
	addr, err := stripScheme(endpoint)
	if err != nil {
		return nil, err
	}
	return transport.DialTCP(ctx, addr, role)
}

func stripScheme(endpoint string) (string, error) {
	const prefix = "tcp://"
	if len(endpoint) <= len(prefix) || endpoint[:len(prefix)] != prefix {
		return "", NewParameterError("connect", fmt.Sprintf("endpoint %q must have a tcp:// scheme", endpoint))
	}
	return endpoint[len(prefix):], nil
}

type peer struct {
	t     transport.Transport
	owned bool
}

// Base implements the connection state shared by Sync and Async: role
// selection, endpoint tracking, and the precondition checks every verb
// runs before it builds a single frame.
type Base struct {
	mu sync.Mutex

	role    transport.Role
	roleSet bool
	peers   []peer
	dial    dialFunc
}

// NewBase constructs an unconnected Base. Role materializes to
// request-reply on the first Connect call if SetRole was never called.
func NewBase() *Base {
	return &Base{dial: defaultDial}
}

// SetRole establishes the socket role before any connect call. Calling
// it after a transport already exists is a state error: the role of an
// established socket cannot change underneath it.
func (b *Base) SetRole(role transport.Role) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.peers) > 0 {
		return NewConnectionStateError("set-role", "role cannot change after connecting")
	}
	b.role = role
	b.roleSet = true
	return nil
}

// Role reports the current (or not-yet-materialized) socket role.
func (b *Base) Role() transport.Role {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.role
}

// Connect dials endpoint and adds it to the peer set, incrementing the
// endpoint count. A default request-reply role materializes on the
// first call if none was set.
func (b *Base) Connect(ctx context.Context, endpoints ...string) error {
	for _, ep := range endpoints {
		if ep == "" {
			return NewParameterError("connect", "endpoint must not be empty")
		}
	}

	b.mu.Lock()
	if !b.roleSet {
		b.role = transport.RoleRequestReply
		b.roleSet = true
	}
	role := b.role
	dial := b.dial
	b.mu.Unlock()

	for _, ep := range endpoints {
		t, err := dial(ctx, ep, role)
		if err != nil {
			return fmt.Errorf("client: connect %s: %w", ep, err)
		}
		b.mu.Lock()
		b.peers = append(b.peers, peer{t: t, owned: true})
		b.mu.Unlock()
	}
	return nil
}

// UseTransport injects an already-established Transport (a Pipe in
// tests, or a caller-managed TCP connection) without dialing. owned
// controls whether Close will close it.
func (b *Base) UseTransport(t transport.Transport, role transport.Role, owned bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.roleSet {
		b.role = role
		b.roleSet = true
	}
	b.peers = append(b.peers, peer{t: t, owned: owned})
}

// checkConnection fails if there is no socket or zero endpoints.
func (b *Base) checkConnection(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.peers) == 0 {
		return NewConnectionStateError(op, "not connected: call Connect or UseTransport first")
	}
	return nil
}

// checkSingleConnection fails if more than one endpoint is connected;
// required for any verb that reads a single deterministic reply.
func (b *Base) checkSingleConnection(op string) error {
	if err := b.checkConnection(op); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.peers) > 1 {
		return NewConnectionStateError(op, "operation requires exactly one connected endpoint")
	}
	return nil
}

// checkRequestReply fails unless the role is request-reply or dealer.
func (b *Base) checkRequestReply(op string) error {
	b.mu.Lock()
	role := b.role
	b.mu.Unlock()
	if role != transport.RoleRequestReply && role != transport.RoleDealer {
		return NewConnectionStateError(op, "operation requires a request-reply or dealer socket")
	}
	return nil
}

// primary returns the sole connected transport, assuming
// checkSingleConnection already passed.
func (b *Base) primary() transport.Transport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peers[0].t
}

// sendMultipart writes frames to every connected peer (fan-out for
// push/publish broadcast; a single send for the common single-peer
// case).
func (b *Base) sendMultipart(frames [][]byte) error {
	b.mu.Lock()
	peers := make([]peer, len(b.peers))
	copy(peers, b.peers)
	b.mu.Unlock()

	for _, p := range peers {
		if err := p.t.SendMultipart(frames); err != nil {
			return fmt.Errorf("client: send: %w", err)
		}
	}
	return nil
}

// Close closes every owned peer transport; borrowed (UseTransport with
// owned=false) transports are left alone.
func (b *Base) Close() error {
	b.mu.Lock()
	peers := b.peers
	b.peers = nil
	b.mu.Unlock()

	var firstErr error
	for _, p := range peers {
		if !p.owned {
			continue
		}
		if err := p.t.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("client: close: %w", err)
		}
	}
	return firstErr
}
