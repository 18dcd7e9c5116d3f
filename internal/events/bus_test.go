package events

import (
	"testing"
	"time"
)

func receiveOne(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscriberReceivesMatchingEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("diagram-a")
	defer cancel()

	bus.Publish(Event{DiagramID: "diagram-a", Version: 3, Kind: KindUpdate})

	event := receiveOne(t, ch)
	if event.Version != 3 || event.Kind != KindUpdate {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestEventsAreFilteredByDiagramID(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("diagram-a")
	defer cancel()

	bus.Publish(Event{DiagramID: "diagram-b", Version: 1, Kind: KindUpdate})
	bus.Publish(Event{DiagramID: "diagram-a", Version: 2, Kind: KindComment})

	event := receiveOne(t, ch)
	if event.DiagramID != "diagram-a" || event.Version != 2 {
		t.Fatalf("received event for wrong diagram: %+v", event)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}

func TestAllSubscribersReceiveEveryEvent(t *testing.T) {
	bus := NewBus()
	first, cancelFirst := bus.Subscribe("diagram-a")
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe("diagram-a")
	defer cancelSecond()

	bus.Publish(Event{DiagramID: "diagram-a", Version: 7, Kind: KindUpdate})

	if event := receiveOne(t, first); event.Version != 7 {
		t.Fatalf("first subscriber got %+v", event)
	}
	if event := receiveOne(t, second); event.Version != 7 {
		t.Fatalf("second subscriber got %+v", event)
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()
	done := make(chan struct{})
	go func() {
		bus.Publish(Event{DiagramID: "nobody-home", Version: 1, Kind: KindUpdate})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()
	slow, cancelSlow := bus.Subscribe("diagram-a")
	defer cancelSlow()
	_ = slow // never drained
	fast, cancelFast := bus.Subscribe("diagram-a")
	defer cancelFast()

	// Overflow the slow subscriber's buffer; the fast one is drained as we go.
	for i := 1; i <= subscriberBuffer*2; i++ {
		bus.Publish(Event{DiagramID: "diagram-a", Version: i, Kind: KindUpdate})
		if event := receiveOne(t, fast); event.Version != i {
			t.Fatalf("fast subscriber got %+v at iteration %d", event, i)
		}
	}
}

func TestCancelStopsDeliveryAndClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("diagram-a")

	cancel()
	cancel() // idempotent

	if count := bus.SubscriberCount("diagram-a"); count != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", count)
	}
	bus.Publish(Event{DiagramID: "diagram-a", Version: 1, Kind: KindUpdate})

	if _, open := <-ch; open {
		t.Fatal("expected closed channel after cancel")
	}
}
