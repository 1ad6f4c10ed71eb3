package events

import (
	"testing"
	"time"
)

func TestBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventOrderPlaced, func(e Event) { got <- e })

	bus.PublishOrderPlaced("cycle-1", "BTCUSDT", "long", 50000, 0.1, 5)

	select {
	case e := <-got:
		if e.Type != EventOrderPlaced {
			t.Errorf("event type = %s, want %s", e.Type, EventOrderPlaced)
		}
		if e.Data["symbol"] != "BTCUSDT" || e.Data["cycle_id"] != "cycle-1" {
			t.Errorf("payload mismatch: %v", e.Data)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp must be stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestBusDoesNotCrossDeliver(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventBreakerTripped, func(e Event) { got <- e })

	bus.PublishCycleCompleted("cycle-1", "BTCUSDT", "hold", "hold", 0.4)

	select {
	case <-got:
		t.Fatal("subscriber received an event of a different type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusAllSubscriber(t *testing.T) {
	bus := NewBus()
	got := make(chan EventType, 2)
	bus.SubscribeAll(func(e Event) { got <- e.Type })

	bus.PublishBreakerTripped("losses")
	bus.PublishBreakerReset()

	seen := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		select {
		case et := <-got:
			seen[et] = true
		case <-time.After(time.Second):
			t.Fatal("all-subscriber missed an event")
		}
	}
	if !seen[EventBreakerTripped] || !seen[EventBreakerReset] {
		t.Errorf("expected both breaker events, saw %v", seen)
	}
}

func TestBusErrorPayload(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventError, func(e Event) { got <- e })

	bus.PublishError("bot", "fetch failed", nil)

	select {
	case e := <-got:
		if _, ok := e.Data["error"]; ok {
			t.Error("nil error must not add an error field")
		}
		if e.Data["source"] != "bot" {
			t.Errorf("source = %v, want bot", e.Data["source"])
		}
	case <-time.After(time.Second):
		t.Fatal("error event not delivered")
	}
}
