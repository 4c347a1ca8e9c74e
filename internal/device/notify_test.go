package device

import (
	"testing"
	"time"
)

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events, cancel := hub.Subscribe(8)
	defer cancel()

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Node: "lumen0", Type: EventKey, Code: i})
	}

	for i := 0; i < 5; i++ {
		select {
		case ev := <-events:
			if ev.Code != i {
				t.Fatalf("event %d has code %d", i, ev.Code)
			}
			if ev.Time.IsZero() {
				t.Error("event time not stamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	a, cancelA := hub.Subscribe(4)
	defer cancelA()
	b, cancelB := hub.Subscribe(4)
	defer cancelB()

	hub.Publish(Event{Node: "lumen1", Type: EventDPI, Slot: 2})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Slot != 2 {
				t.Errorf("subscriber %s got %+v", name, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s got nothing", name)
		}
	}
}

func TestHubSlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	events, cancel := hub.Subscribe(2)
	defer cancel()

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: EventWheel, Delta: i})
	}

	if hub.Dropped() == 0 {
		t.Error("expected dropped events")
	}

	// The newest events survive.
	var got []int
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Delta)
		case <-time.After(time.Second):
			t.Fatalf("only %d events delivered", len(got))
		}
	}
	if got[len(got)-1] != 4 {
		t.Errorf("last delivered delta = %d, want 4", got[len(got)-1])
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, cancel := hub.Subscribe(1)
	cancel()
	cancel()

	// Publishing after cancel must not panic or block.
	hub.Publish(Event{Type: EventKey})
}

func TestHubCloseEndsSubscribers(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}

	// Publish after close is a no-op.
	hub.Publish(Event{Type: EventKey})
}
