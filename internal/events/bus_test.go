/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestBusDelivery(t *testing.T) {
	bus := NewBus()
	deleted := bus.Subscribe(EventItemDeleted)
	other := bus.Subscribe(EventTickStarted)

	bus.Publish(EventItemDeleted, Payload{"item_id": 4})

	select {
	case p := <-deleted:
		if p["item_id"] != 4 {
			t.Errorf("payload = %v", p)
		}
	default:
		t.Fatal("subscriber did not receive the event")
	}
	select {
	case p := <-other:
		t.Fatalf("unrelated subscriber received %v", p)
	default:
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventNotify)
	for i := 0; i < cap(sub)+5; i++ {
		bus.Publish(EventNotify, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Errorf("buffered = %d, want %d", len(sub), cap(sub))
	}
}

func TestUnsubscribeCloses(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventNotify)
	bus.Unsubscribe(EventNotify, sub)
	if _, ok := <-sub; ok {
		t.Error("subscriber channel should be closed")
	}
	bus.Publish(EventNotify, Payload{})
	// Unsubscribing twice is a no-op.
	bus.Unsubscribe(EventNotify, sub)
}
