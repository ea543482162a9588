// Package trace fans bus status events out to observers. The driver's trace
// hook runs in handler context and must never block, so delivery is
// drop-oldest: a slow subscriber loses the oldest event, not the bus.
package trace

import (
	"sync"

	"twilink-go/twi"
)

// Event is one observed bus transition on one device.
type Event struct {
	Device string
	Status twi.Status
}

// Subscription receives events on a buffered channel.
type Subscription struct {
	ch  chan Event
	hub *Hub
}

func (s *Subscription) Channel() <-chan Event { return s.ch }
func (s *Subscription) Unsubscribe()          { s.hub.unsubscribe(s) }

// Hub distributes events to subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs []*Subscription
	qLen int
}

// NewHub creates a hub with the given per-subscriber queue length.
func NewHub(queueLen int) *Hub {
	if queueLen <= 0 {
		queueLen = 32 // safe default
	}
	return &Hub{qLen: queueLen}
}

// Subscribe registers a new observer.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Event, h.qLen), hub: h}
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	close(sub.ch)
}

// Publish delivers an event to all subscribers, dropping the oldest queued
// event of any subscriber whose queue is full.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Feed returns a driver trace hook that publishes under the given device
// name. Install with Driver.SetTrace.
func (h *Hub) Feed(device string) func(twi.Status) {
	return func(st twi.Status) {
		h.Publish(Event{Device: device, Status: st})
	}
}
