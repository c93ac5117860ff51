package monitor_test

import (
	"errors"
	"testing"
	"time"

	"github.com/yakdb/yakdb-go/monitor"
)

func recvWithTimeout(t *testing.T, ch <-chan monitor.Event) (monitor.Event, bool) {
	t.Helper()
	select {
	case e, ok := <-ch:
		return e, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return monitor.Event{}, false
	}
}

func TestBrokerPublishFansOutToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := monitor.NewBroker()
	ch1, id1 := b.Subscribe(1)
	ch2, id2 := b.Subscribe(1)
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	want := monitor.Event{Verb: monitor.VerbPut}
	b.Publish(want)

	got1, ok := recvWithTimeout(t, ch1)
	if !ok || got1.Verb != want.Verb {
		t.Fatalf("ch1 received %v, ok=%v", got1, ok)
	}
	got2, ok := recvWithTimeout(t, ch2)
	if !ok || got2.Verb != want.Verb {
		t.Fatalf("ch2 received %v, ok=%v", got2, ok)
	}
}

func TestBrokerUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	t.Parallel()

	b := monitor.NewBroker()
	ch, id := b.Subscribe(1)

	b.Unsubscribe(id)

	// The channel is closed, so a receive returns the zero Event with
	// ok == false rather than blocking.
	ev, ok := recvWithTimeout(t, ch)
	if ok {
		t.Fatalf("expected closed channel, got event %v", ev)
	}

	// Publishing after Unsubscribe must not panic on a closed channel.
	b.Publish(monitor.Event{Verb: monitor.VerbScan})
}

func TestBrokerPublishDropsOnFullChannel(t *testing.T) {
	t.Parallel()

	b := monitor.NewBroker()
	ch, id := b.Subscribe(1)
	defer b.Unsubscribe(id)

	// Fill the one-slot buffer, then publish a second event: Publish
	// must not block even though nothing is draining ch.
	b.Publish(monitor.Event{Verb: monitor.VerbRead})

	done := make(chan struct{})
	go func() {
		b.Publish(monitor.Event{Verb: monitor.VerbDelete})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	// Only the first event made it through; the second was dropped.
	got, ok := recvWithTimeout(t, ch)
	if !ok || got.Verb != monitor.VerbRead {
		t.Fatalf("got %v, ok=%v, want VerbRead", got, ok)
	}
	select {
	case extra, ok := <-ch:
		t.Fatalf("unexpected second event %v, ok=%v", extra, ok)
	default:
	}
}

func TestBrokerCloseClosesAllSubscribersAndIsIdempotent(t *testing.T) {
	t.Parallel()

	b := monitor.NewBroker()
	ch1, _ := b.Subscribe(1)
	ch2, _ := b.Subscribe(1)

	b.Close()
	b.Close() // must not panic on double close

	if _, ok := recvWithTimeout(t, ch1); ok {
		t.Fatal("ch1 should be closed")
	}
	if _, ok := recvWithTimeout(t, ch2); ok {
		t.Fatal("ch2 should be closed")
	}

	// Publish and Subscribe after Close must be safe no-ops.
	b.Publish(monitor.Event{Verb: monitor.VerbPut})
	ch3, _ := b.Subscribe(1)
	select {
	case ev, ok := <-ch3:
		t.Fatalf("unexpected delivery to post-close subscriber: %v, ok=%v", ev, ok)
	default:
	}
}

func TestBrokerObserveImplementsSink(t *testing.T) {
	t.Parallel()

	b := monitor.NewBroker()
	ch, id := b.Subscribe(1)
	defer b.Unsubscribe(id)

	var sink monitor.Sink = b
	sink.Observe(monitor.Event{Verb: monitor.VerbExists, Err: errors.New("boom")})

	got, ok := recvWithTimeout(t, ch)
	if !ok || got.Verb != monitor.VerbExists || got.Err == nil {
		t.Fatalf("got %v, ok=%v", got, ok)
	}
}
