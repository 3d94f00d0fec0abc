package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	b.Publish(Event{Kind: ConversationUpdated, Timestamp: time.Now(), Payload: "c1"})

	select {
	case evt := <-ch:
		if evt.Kind != ConversationUpdated {
			t.Errorf("got kind %q, want %s", evt.Kind, ConversationUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("transport.call_", 10)
	defer unsub()

	b.Emit(TransportNewMessage, nil)
	b.Emit(TransportCallOffer, nil)

	select {
	case evt := <-ch:
		if evt.Kind != TransportCallOffer {
			t.Errorf("got kind %q, want %s", evt.Kind, TransportCallOffer)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The message event must not leak into the call namespace.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	before := time.Now()
	b.Emit(PresenceUpdated, 3)

	evt := <-ch
	if evt.Timestamp.Before(before) {
		t.Errorf("timestamp %v is before publish time %v", evt.Timestamp, before)
	}
	if evt.Payload != 3 {
		t.Errorf("payload = %v, want 3", evt.Payload)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("call.", 10)
	unsub()

	b.Emit(CallStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("typing.", 1)
	defer unsub()

	b.Emit(TypingChanged, "one")
	// Buffer is full; this one is dropped.
	b.Emit(TypingChanged, "two")

	evt := <-ch
	if evt.Payload != "one" {
		t.Errorf("got %v, want one", evt.Payload)
	}
	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	_, unsubA := b.Subscribe("call.", 1)
	_, unsubB := b.Subscribe("", 1)
	if got := b.Subscribers(); got != 2 {
		t.Fatalf("Subscribers() = %d, want 2", got)
	}

	unsubA()
	unsubA()
	if got := b.Subscribers(); got != 1 {
		t.Errorf("Subscribers() after double unsubscribe = %d, want 1", got)
	}
	unsubB()
	if got := b.Subscribers(); got != 0 {
		t.Errorf("Subscribers() = %d, want 0", got)
	}
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Emit(CallNotice, nil)
	if b.Dropped() != 0 || b.Subscribers() != 0 {
		t.Error("nil bus should report no activity")
	}
}
