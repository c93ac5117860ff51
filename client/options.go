package client

import (
	"github.com/yakdb/yakdb-go/monitor"
	"github.com/yakdb/yakdb-go/transport"
)

// config accumulates Option values for NewSync/NewAsync.
type config struct {
	endpoint  string
	transport transport.Transport
	role      transport.Role
	roleSet   bool
	owned     bool
	sink      monitor.Sink
}

// Option configures a new Sync or Async connection.
type Option func(*config)

// WithEndpoint dials endpoint (e.g. "tcp://localhost:7100") as the
// connection's sole peer: request-reply role by default for Sync,
// dealer role by default for Async.
func WithEndpoint(endpoint string) Option {
	return func(c *config) { c.endpoint = endpoint }
}

// WithTransport injects an already-connected Transport (typically a
// transport.Pipe in tests) instead of dialing. If owned is true, Close
// closes it.
func WithTransport(t transport.Transport, owned bool) Option {
	return func(c *config) {
		c.transport = t
		c.owned = owned
	}
}

// WithRole fixes the socket role explicitly, overriding the
// request-reply default materialized on first connect.
func WithRole(role transport.Role) Option {
	return func(c *config) {
		c.role = role
		c.roleSet = true
	}
}

// WithSink attaches an observability sink; every verb call reports one
// monitor.Event to it. Omit for a zero-overhead connection.
func WithSink(sink monitor.Sink) Option {
	return func(c *config) { c.sink = sink }
}
