package watch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func recvEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertNoEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestKindString(t *testing.T) {
	if KindUpdated.String() != "updated" {
		t.Errorf("KindUpdated = %q", KindUpdated.String())
	}
	if KindDeleted.String() != "deleted" {
		t.Errorf("KindDeleted = %q", KindDeleted.String())
	}
	if Kind(9).String() != "unknown" {
		t.Errorf("Kind(9) = %q", Kind(9).String())
	}
}

func TestTopicConstructors(t *testing.T) {
	kt := KeyTopic("orders", "o1")
	if kt.Bucket != "orders" || kt.Key != "o1" {
		t.Fatalf("KeyTopic = %+v", kt)
	}
	bt := BucketTopic("orders")
	if bt.Bucket != "orders" || bt.Key != "" {
		t.Fatalf("BucketTopic = %+v", bt)
	}
}

func TestWatcherReceivesSubscribedTopic(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()
	w.Subscribe(KeyTopic("orders", "o1"))

	now := time.Now()
	b.Broadcast(KeyTopic("orders", "o1"), Event{
		Kind: KindUpdated, Bucket: "orders", Key: "o1", Value: "pending", Time: now,
	})

	ev := recvEvent(t, w)
	if ev.Kind != KindUpdated || ev.Bucket != "orders" || ev.Key != "o1" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Value != "pending" {
		t.Fatalf("event value = %v, want pending", ev.Value)
	}
	if !ev.Time.Equal(now) {
		t.Fatalf("event time = %v, want %v", ev.Time, now)
	}
}

func TestWatcherIgnoresOtherTopics(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()
	w.Subscribe(KeyTopic("orders", "o1"))

	b.Broadcast(KeyTopic("orders", "o2"), Event{Kind: KindUpdated, Bucket: "orders", Key: "o2"})
	b.Broadcast(BucketTopic("orders"), Event{Kind: KindUpdated, Bucket: "orders", Key: "o2"})

	assertNoEvent(t, w)
}

func TestBucketTopicSeesAllKeys(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()
	w.Subscribe(BucketTopic("orders"))

	for _, key := range []string{"o1", "o2", "o3"} {
		b.Broadcast(BucketTopic("orders"), Event{Kind: KindUpdated, Bucket: "orders", Key: key})
	}

	for _, want := range []string{"o1", "o2", "o3"} {
		if ev := recvEvent(t, w); ev.Key != want {
			t.Fatalf("event key = %q, want %q", ev.Key, want)
		}
	}
}

func TestDuplicateSubscribeCollapses(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()

	topic := KeyTopic("orders", "o1")
	w.Subscribe(topic)
	w.Subscribe(topic)

	b.Broadcast(topic, Event{Kind: KindUpdated, Key: "o1"})
	recvEvent(t, w)
	assertNoEvent(t, w)

	// A single Unsubscribe undoes the collapsed membership.
	w.Unsubscribe(topic)
	b.Broadcast(topic, Event{Kind: KindUpdated, Key: "o1"})
	assertNoEvent(t, w)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()

	topic := KeyTopic("orders", "o1")
	w.Subscribe(topic)
	b.Broadcast(topic, Event{Kind: KindUpdated})
	recvEvent(t, w)

	w.Unsubscribe(topic)
	b.Broadcast(topic, Event{Kind: KindUpdated})
	assertNoEvent(t, w)
}

func TestUnsubscribeNonMember(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()

	w.Unsubscribe(KeyTopic("orders", "never-joined"))
}

func TestBufferedEventsSurviveUnsubscribe(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()

	topic := KeyTopic("orders", "o1")
	w.Subscribe(topic)
	b.Broadcast(topic, Event{Kind: KindUpdated, Value: 1})
	w.Unsubscribe(topic)

	if ev := recvEvent(t, w); ev.Value != 1 {
		t.Fatalf("buffered event lost: %+v", ev)
	}
}

func TestBufferOverflowDrops(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 2)
	defer w.Close()

	topic := KeyTopic("orders", "o1")
	w.Subscribe(topic)

	for i := 0; i < 5; i++ {
		b.Broadcast(topic, Event{Kind: KindUpdated, Value: i})
	}

	if got := w.Dropped(); got != 3 {
		t.Fatalf("Dropped() = %d, want 3", got)
	}
	s := b.Stats()
	if s.Delivered != 2 {
		t.Fatalf("Stats.Delivered = %d, want 2", s.Delivered)
	}
	if s.Dropped != 3 {
		t.Fatalf("Stats.Dropped = %d, want 3", s.Dropped)
	}

	// The two oldest events made it into the buffer.
	if ev := recvEvent(t, w); ev.Value != 0 {
		t.Fatalf("first buffered event = %+v", ev)
	}
	if ev := recvEvent(t, w); ev.Value != 1 {
		t.Fatalf("second buffered event = %+v", ev)
	}
}

func TestDefaultBuffer(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()
	if cap(w.ch) != DefaultBuffer {
		t.Fatalf("buffer = %d, want %d", cap(w.ch), DefaultBuffer)
	}

	w2 := b.NewWatcher(context.Background(), -5)
	defer w2.Close()
	if cap(w2.ch) != DefaultBuffer {
		t.Fatalf("buffer = %d, want %d", cap(w2.ch), DefaultBuffer)
	}
}

func TestCloseClosesChannel(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	w.Close()
	w.Close() // idempotent

	if _, ok := <-w.Events(); ok {
		t.Fatal("events channel should be closed")
	}
}

func TestCloseRemovesSubscriptions(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	topic := KeyTopic("orders", "o1")
	w.Subscribe(topic)
	w.Close()

	b.Broadcast(topic, Event{Kind: KindUpdated})
	if s := b.Stats(); s.Delivered != 0 || s.Dropped != 0 {
		t.Fatalf("broadcast after Close still counted: %+v", s)
	}

	// Subscribing a closed watcher must stay a no-op.
	w.Subscribe(topic)
	b.Broadcast(topic, Event{Kind: KindUpdated})
	if s := b.Stats(); s.Delivered != 0 {
		t.Fatalf("closed watcher received an event: %+v", s)
	}
}

func TestContextEndClosesWatcher(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	w := b.NewWatcher(ctx, 0)
	w.Subscribe(KeyTopic("orders", "o1"))

	cancel()

	select {
	case _, ok := <-w.Events():
		if ok {
			t.Fatal("expected channel close, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher not closed after context end")
	}

	if s := b.Stats(); s.Watchers != 0 {
		t.Fatalf("Stats.Watchers = %d, want 0", s.Watchers)
	}
}

func TestPreCanceledContextClosesWatcher(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A ctx that is already done auto-closes the watcher from its own
	// goroutine while NewWatcher is still returning.
	for i := 0; i < 20; i++ {
		w := b.NewWatcher(ctx, 0)
		select {
		case _, ok := <-w.Events():
			if ok {
				t.Fatal("expected channel close, got event")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("watcher not closed for pre-canceled context")
		}
	}

	if s := b.Stats(); s.Watchers != 0 {
		t.Fatalf("Stats.Watchers = %d, want 0", s.Watchers)
	}
}

func TestStatsWatcherCount(t *testing.T) {
	b := NewBus()
	w1 := b.NewWatcher(context.Background(), 0)
	w2 := b.NewWatcher(context.Background(), 0)
	w3 := b.NewWatcher(context.Background(), 0)

	if s := b.Stats(); s.Watchers != 3 {
		t.Fatalf("Stats.Watchers = %d, want 3", s.Watchers)
	}
	w2.Close()
	if s := b.Stats(); s.Watchers != 2 {
		t.Fatalf("Stats.Watchers = %d, want 2", s.Watchers)
	}
	w1.Close()
	w3.Close()
}

func TestEventOrderFromOnePublisher(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 0)
	defer w.Close()

	topic := KeyTopic("orders", "o1")
	w.Subscribe(topic)
	for i := 0; i < 10; i++ {
		b.Broadcast(topic, Event{Kind: KindUpdated, Value: i})
	}
	for i := 0; i < 10; i++ {
		if ev := recvEvent(t, w); ev.Value != i {
			t.Fatalf("event %d arrived as %+v", i, ev)
		}
	}
}

func TestConcurrentBroadcastAndClose(t *testing.T) {
	b := NewBus()
	topic := KeyTopic("orders", "hot")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		w := b.NewWatcher(context.Background(), 4)
		w.Subscribe(topic)
		wg.Add(2)
		go func(w *Watcher) {
			defer wg.Done()
			w.Close()
		}(w)
		go func(i int) {
			defer wg.Done()
			b.Broadcast(topic, Event{Kind: KindUpdated, Value: i})
		}(i)
	}
	wg.Wait()

	if s := b.Stats(); s.Watchers != 0 {
		t.Fatalf("Stats.Watchers = %d, want 0", s.Watchers)
	}
}

func TestManyTopicsOneWatcher(t *testing.T) {
	b := NewBus()
	w := b.NewWatcher(context.Background(), 128)
	defer w.Close()

	for i := 0; i < 10; i++ {
		w.Subscribe(KeyTopic("orders", fmt.Sprintf("o%d", i)))
	}
	for i := 0; i < 10; i++ {
		b.Broadcast(KeyTopic("orders", fmt.Sprintf("o%d", i)), Event{Kind: KindUpdated, Value: i})
	}

	seen := make(map[any]bool)
	for i := 0; i < 10; i++ {
		seen[recvEvent(t, w).Value] = true
	}
	if len(seen) != 10 {
		t.Fatalf("received %d distinct events, want 10", len(seen))
	}
}
