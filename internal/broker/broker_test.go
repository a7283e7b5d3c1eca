// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscribeAndBroadcast(t *testing.T) {
	b := New(8, discardLogger())

	sub := b.Subscribe(ChannelDashboard, "")
	defer sub.Close()

	if sub.State() != StateOpen {
		t.Fatalf("expected open subscription, got %d", sub.State())
	}
	if got := b.SubscriberCount(ChannelDashboard); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	delivered := b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh})
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}

	env := <-sub.C()
	if env.Type != TypeRefresh {
		t.Fatalf("expected refresh envelope, got %s", env.Type)
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := New(8, discardLogger())

	subs := make([]*Subscription, 0, 3)
	for i := 0; i < 3; i++ {
		subs = append(subs, b.Subscribe(ChannelDashboard, ""))
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()

	if delivered := b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh}); delivered != 3 {
		t.Fatalf("expected 3 deliveries, got %d", delivered)
	}
	for i, s := range subs {
		if env := <-s.C(); env.Type != TypeRefresh {
			t.Fatalf("subscriber %d: expected refresh, got %s", i, env.Type)
		}
	}
}

func TestPerConnectionFIFO(t *testing.T) {
	b := New(16, discardLogger())
	sub := b.Subscribe("chat:test", "")
	defer sub.Close()

	for i := 0; i < 5; i++ {
		if !sub.Send(Envelope{Type: TypeChatChunk, Content: fmt.Sprintf("w%d", i)}) {
			t.Fatalf("send %d failed", i)
		}
	}
	if !sub.Send(Envelope{Type: TypeChatDone}) {
		t.Fatal("done send failed")
	}

	for i := 0; i < 5; i++ {
		env := <-sub.C()
		if env.Type != TypeChatChunk || env.Content != fmt.Sprintf("w%d", i) {
			t.Fatalf("expected chunk w%d in order, got %s %q", i, env.Type, env.Content)
		}
	}

	// The terminal done signal is observed after all preceding deltas.
	if env := <-sub.C(); env.Type != TypeChatDone {
		t.Fatalf("expected done after deltas, got %s", env.Type)
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	b := New(2, discardLogger())

	slow := b.Subscribe(ChannelDashboard, "")
	healthy := b.Subscribe(ChannelDashboard, "")
	defer healthy.Close()

	// Nobody reads slow; the third broadcast overflows its queue.
	b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh})
	b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh})
	b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh})

	if slow.State() != StateClosed {
		t.Fatalf("expected slow consumer closed, got %d", slow.State())
	}
	if got := b.SubscriberCount(ChannelDashboard); got != 1 {
		t.Fatalf("expected only healthy subscriber left, got %d", got)
	}

	// The healthy subscriber saw every message despite the drop.
	count := 0
	healthy.Drain()
	for range healthy.C() {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Fatalf("expected healthy subscriber to receive 3, got %d", count)
	}
}

func TestDrainStopsApplicationDelivery(t *testing.T) {
	b := New(8, discardLogger())
	sub := b.Subscribe("chat:test", "")
	defer sub.Close()

	sub.Send(Envelope{Type: TypeChatChunk, Content: "before"})
	sub.Drain()

	if sub.State() != StateDraining {
		t.Fatalf("expected draining state, got %d", sub.State())
	}
	if sub.Send(Envelope{Type: TypeChatChunk, Content: "after"}) {
		t.Fatal("expected send after drain to be refused")
	}

	// Buffered bytes still flush.
	if env := <-sub.C(); env.Content != "before" {
		t.Fatalf("expected buffered envelope to flush, got %q", env.Content)
	}
}

func TestCloseIsIdempotentAndDeregisters(t *testing.T) {
	b := New(8, discardLogger())
	sub := b.Subscribe(ChannelDashboard, "")

	sub.Close()
	sub.Close()

	if got := b.SubscriberCount(ChannelDashboard); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed delivery queue")
	}

	// Broadcasting after close delivers to nobody and does not panic.
	if delivered := b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh}); delivered != 0 {
		t.Fatalf("expected 0 deliveries, got %d", delivered)
	}
}

func TestSessionFilter(t *testing.T) {
	b := New(8, discardLogger())

	s1 := b.Subscribe(ChannelDashboard, "sess-1")
	s2 := b.Subscribe(ChannelDashboard, "sess-2")
	defer s1.Close()
	defer s2.Close()

	if delivered := b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh, Session: "sess-1"}); delivered != 1 {
		t.Fatalf("expected scoped broadcast to reach 1 subscriber, got %d", delivered)
	}

	// An unscoped envelope reaches everyone.
	if delivered := b.Broadcast(ChannelDashboard, Envelope{Type: TypeRefresh}); delivered != 2 {
		t.Fatalf("expected unscoped broadcast to reach 2, got %d", delivered)
	}
}
