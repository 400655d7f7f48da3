// SPDX-License-Identifier: MPL-2.0

package eventbus

import (
	"sync"
	"testing"
)

func TestEmitDeliversToMatchingSubscribers(t *testing.T) {
	t.Parallel()

	b := New()
	var got []Event
	var mu sync.Mutex

	b.On(KindCommandStart, Selector{}, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	b.On(KindCommandComplete, Selector{}, func(e Event) {
		t.Error("unrelated kind should not have been delivered")
	})

	b.Emit(Event{Kind: KindCommandStart, Adapter: "local"})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Adapter != "local" {
		t.Errorf("got = %v, want one command:start event for local", got)
	}
}

func TestSelectorFiltersByAdapter(t *testing.T) {
	t.Parallel()

	b := New()
	var deliveries int
	var mu sync.Mutex

	b.On(KindSSHConnect, Selector{Adapter: "ssh"}, func(e Event) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})

	b.Emit(Event{Kind: KindSSHConnect, Adapter: "docker"})
	b.Emit(Event{Kind: KindSSHConnect, Adapter: "ssh"})

	mu.Lock()
	defer mu.Unlock()
	if deliveries != 1 {
		t.Errorf("deliveries = %d, want 1", deliveries)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := New()
	var deliveries int
	var mu sync.Mutex

	unsub := b.On(KindCommandStart, Selector{}, func(e Event) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	})

	b.Emit(Event{Kind: KindCommandStart})
	unsub()
	unsub() // idempotent
	b.Emit(Event{Kind: KindCommandStart})

	mu.Lock()
	defer mu.Unlock()
	if deliveries != 1 {
		t.Errorf("deliveries = %d, want 1", deliveries)
	}
}

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	t.Parallel()

	b := New()
	var gotInternal bool
	var mu sync.Mutex

	b.On(KindInternalError, Selector{}, func(e Event) {
		mu.Lock()
		gotInternal = true
		mu.Unlock()
	})
	b.On(KindCommandStart, Selector{}, func(e Event) {
		panic("boom")
	})

	b.Emit(Event{Kind: KindCommandStart})

	mu.Lock()
	defer mu.Unlock()
	if !gotInternal {
		t.Error("expected a panicking handler to surface as internal:error")
	}
}
