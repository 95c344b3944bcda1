// pkg/session/eventstream_test.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"testing"
)

func TestEventStream(t *testing.T) {
	es := NewEventStream(nil)
	defer es.Destroy()

	es.Post(Notification{Type: NotifyProgress}) // no subscribers yet; dropped

	sub := es.Subscribe()
	if ns := sub.Get(); len(ns) != 0 {
		t.Errorf("got %d notifications from before Subscribe", len(ns))
	}

	es.Post(Notification{Type: NotifyTurn})
	es.Post(Notification{Type: NotifyHazard})

	ns := sub.Get()
	if len(ns) != 2 {
		t.Fatalf("got %d notifications, expected 2", len(ns))
	}
	if ns[0].Type != NotifyTurn || ns[1].Type != NotifyHazard {
		t.Errorf("notifications out of order: %v %v", ns[0].Type, ns[1].Type)
	}

	// Get again with nothing new posted.
	if ns := sub.Get(); len(ns) != 0 {
		t.Errorf("got %d notifications on empty stream", len(ns))
	}
}

func TestEventStreamMultipleSubscribers(t *testing.T) {
	es := NewEventStream(nil)
	defer es.Destroy()

	a := es.Subscribe()
	es.Post(Notification{Type: NotifyProgress})

	// b subscribes after the first post and must not see it.
	b := es.Subscribe()
	es.Post(Notification{Type: NotifyArrived})

	if ns := a.Get(); len(ns) != 2 {
		t.Errorf("subscriber a got %d notifications, expected 2", len(ns))
	}
	ns := b.Get()
	if len(ns) != 1 {
		t.Fatalf("subscriber b got %d notifications, expected 1", len(ns))
	}
	if ns[0].Type != NotifyArrived {
		t.Errorf("subscriber b got %v, expected Arrived", ns[0].Type)
	}

	a.Unsubscribe()
	es.Post(Notification{Type: NotifyStall})
	if ns := b.Get(); len(ns) != 1 {
		t.Errorf("subscriber b got %d notifications after unsubscribe of a, expected 1", len(ns))
	}
}

func TestEventStreamCompact(t *testing.T) {
	es := NewEventStream(nil)
	defer es.Destroy()

	sub := es.Subscribe()
	for n := 0; n < 100; n++ {
		es.Post(Notification{Type: NotifyProgress})
	}
	if ns := sub.Get(); len(ns) != 100 {
		t.Fatalf("got %d notifications, expected 100", len(ns))
	}

	es.mu.Lock()
	es.compact()
	es.mu.Unlock()

	// Everything was consumed, so compaction should have discarded it
	// all and further Gets pick up cleanly.
	es.Post(Notification{Type: NotifyArrived})
	ns := sub.Get()
	if len(ns) != 1 || ns[0].Type != NotifyArrived {
		t.Errorf("post-compact Get returned %d notifications", len(ns))
	}
}
