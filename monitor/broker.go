package monitor

import "sync"

// Broker fans Events out to any number of subscribers. Publish never
// blocks the publisher: a subscriber whose channel is full silently
// misses the event rather than stalling verb execution.
type Broker struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	closed      bool
}

// NewBroker constructs an empty Broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer
// size and returns the channel plus a handle for Unsubscribe.
func (b *Broker) Subscribe(bufferSize int) (<-chan Event, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, bufferSize)
	b.subscribers[id] = ch
	return ch, id
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish fans e out to every subscriber. A subscriber with a full
// channel drops the event rather than blocking the caller.
func (b *Broker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Observe implements Sink so a Broker can be passed directly as a
// connection's event sink.
func (b *Broker) Observe(e Event) { b.Publish(e) }

// Close unsubscribes and closes every subscriber channel. Publish
// becomes a no-op afterward.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
