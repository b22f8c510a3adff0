/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"testing"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlacementMoved)
	other := bus.Subscribe(EventCascadeCompleted)

	bus.Publish(EventPlacementMoved, Payload{"job_id": "j1"})

	select {
	case got := <-sub:
		if got["job_id"] != "j1" {
			t.Fatalf("unexpected payload %v", got)
		}
	default:
		t.Fatal("expected payload on subscriber")
	}

	select {
	case got := <-other:
		t.Fatalf("unexpected delivery to other event type: %v", got)
	default:
	}
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventCalendarUpdated)

	for i := 0; i < cap(sub)+10; i++ {
		bus.Publish(EventCalendarUpdated, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("expected full buffer of %d, got %d", cap(sub), len(sub))
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventConflictDetected)
	bus.Unsubscribe(EventConflictDetected, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(EventConflictDetected, Payload{})
}

func TestBusConcurrentPublishAndUnsubscribe(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		sub := bus.Subscribe(EventPlacementMoved)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(EventPlacementMoved, Payload{"j": j})
			}
		}()
		go func() {
			defer wg.Done()
			bus.Unsubscribe(EventPlacementMoved, sub)
		}()
	}
	wg.Wait()
}

func TestPayloadRemote(t *testing.T) {
	if (Payload{"job_id": "j1"}).Remote() {
		t.Fatal("local payload reported as remote")
	}
	if !(Payload{OriginNodeKey: "node-b"}).Remote() {
		t.Fatal("relayed payload not reported as remote")
	}
}
