package device

import (
	"sync"
	"time"
)

// EventType classifies a device event.
type EventType string

// Event types.
const (
	// EventKey is a key press or release.
	EventKey EventType = "key"

	// EventWheel is a scroll wheel movement.
	EventWheel EventType = "wheel"

	// EventDPI is a hardware DPI stage change.
	EventDPI EventType = "dpi"

	// EventBattery is a battery level report.
	EventBattery EventType = "battery"

	// EventMode is a hardware mode switch press.
	EventMode EventType = "mode"

	// EventAttach is a device joining the registry.
	EventAttach EventType = "attach"

	// EventDetach is a device leaving the registry.
	EventDetach EventType = "detach"

	// EventProfile is a profile switch completing.
	EventProfile EventType = "profile"

	// EventMacro is a macro replay firing.
	EventMacro EventType = "macro"

	// EventFirmware is a firmware version change after a flash.
	EventFirmware EventType = "firmware"
)

// Event is a decoded, addressable device event.
//
// Fields beyond DeviceID, Node, Type, and Time are populated per
// type: Code and Pressed for keys, Delta for wheels, Level and
// Charging for battery, Slot for DPI, mode, and profile events.
type Event struct {
	DeviceID string
	Node     string
	Type     EventType

	Code     int
	Pressed  bool
	Delta    int
	Level    int
	Charging bool
	Slot     int

	Time time.Time
}

// Hub fans device events out to subscribers.
//
// Publishing never blocks: each subscriber has its own buffered
// channel and a slow subscriber loses its oldest queued events
// rather than stalling the publisher. Events published for one
// device are delivered to each subscriber in publish order.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool

	// Dropped counts events discarded due to full subscriber buffers.
	dropped uint64
}

type subscriber struct {
	ch chan Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber with the given buffer size.
//
// The returned cancel function removes the subscription and closes
// the channel. Safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{ch: ch}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full: drop the oldest to make room so the
			// subscriber sees the most recent events.
			select {
			case <-sub.ch:
				h.dropped++
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				h.dropped++
			}
		}
	}
}

// Dropped returns the count of events lost to full buffers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes all subscriber channels. Subsequent publishes are
// discarded and subsequent subscriptions receive a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
