// Package events fans change notifications out to whichever clients are
// currently watching a diagram. Delivery is best-effort and in-process
// only: no buffering beyond per-subscriber channel slack, no replay.
package events

import (
	"log"
	"sync"
)

type Kind string

const (
	KindUpdate  Kind = "update"
	KindComment Kind = "comment"
)

type Event struct {
	DiagramID string `json:"diagramId"`
	Version   int    `json:"version"`
	Kind      Kind   `json:"type"`
}

// subscriberBuffer bounds how far a slow consumer can lag before events
// are dropped for it. Dropping beats blocking the emitter or its peers.
const subscriberBuffer = 16

type Bus struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers interest in one diagram id. The returned cancel
// func must be called when the consumer goes away; it closes the channel
// and removes the registration. Cancel is safe to call more than once.
func (b *Bus) Subscribe(diagramID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[diagramID] == nil {
		b.subs[diagramID] = make(map[chan Event]struct{})
	}
	b.subs[diagramID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[diagramID], ch)
			if len(b.subs[diagramID]) == 0 {
				delete(b.subs, diagramID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers event to every current subscriber of its diagram id.
// Subscribers whose buffer is full miss the event; Publish never blocks.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.DiagramID] {
		select {
		case ch <- event:
		default:
			log.Printf("events: dropping %s event for slow subscriber of %s", event.Kind, event.DiagramID)
		}
	}
}

// SubscriberCount reports how many consumers watch a diagram id.
func (b *Bus) SubscriberCount(diagramID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[diagramID])
}
