// Package watch implements the notification side of the store: topics,
// change events, and watchers. A topic is either a single key in a bucket
// or a whole bucket. Delivery is asynchronous and best-effort: broadcasts
// never block the publisher, and a watcher that cannot keep up loses
// events rather than slowing writers down.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"warren/internal/logging"
)

// DefaultBuffer is the per-watcher event buffer used when the requested
// buffer size is zero or negative.
const DefaultBuffer = 64

var logger = logging.For("watch")

// Kind tells what happened to a key.
type Kind int

const (
	KindUpdated Kind = iota
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindUpdated:
		return "updated"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Topic identifies a subscription target. Key == "" denotes the
// whole-bucket topic, which receives events for every key in the bucket.
type Topic struct {
	Bucket string
	Key    string
}

// KeyTopic returns the topic for one key in a bucket.
func KeyTopic(bucket, key string) Topic {
	return Topic{Bucket: bucket, Key: key}
}

// BucketTopic returns the whole-bucket topic.
func BucketTopic(bucket string) Topic {
	return Topic{Bucket: bucket}
}

// Event describes one observed mutation. Value carries the stored value
// for updates and is nil for deletions.
type Event struct {
	Kind   Kind
	Bucket string
	Key    string
	Value  any
	Time   time.Time
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Watchers  int
	Delivered uint64
	Dropped   uint64
}

// Bus fans events out to watchers. All methods are safe for concurrent
// use. A bus is shared by every bucket of a store; topics spring into
// existence on first subscription, so watching a bucket that does not
// exist yet is allowed.
type Bus struct {
	mu       sync.RWMutex
	subs     map[Topic]map[*Watcher]struct{}
	watchers map[*Watcher]struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:     make(map[Topic]map[*Watcher]struct{}),
		watchers: make(map[*Watcher]struct{}),
	}
}

// NewWatcher creates a watcher with the given event buffer (DefaultBuffer
// if buffer <= 0). If ctx is non-nil, the watcher closes itself when ctx
// ends, dropping every subscription it still holds: a watcher whose owner
// is gone never lingers on a topic.
func (b *Bus) NewWatcher(ctx context.Context, buffer int) *Watcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	w := &Watcher{
		id:     uuid.NewString(),
		bus:    b,
		ch:     make(chan Event, buffer),
		topics: make(map[Topic]struct{}),
	}
	b.mu.Lock()
	b.watchers[w] = struct{}{}
	if ctx != nil {
		// Registered under the bus lock: a ctx that is already done runs
		// Close in its own goroutine, which must observe the stop hook.
		w.stop = context.AfterFunc(ctx, w.Close)
	}
	b.mu.Unlock()
	return w
}

// Broadcast delivers ev to every watcher subscribed to topic at the moment
// of the call. Each delivery is a non-blocking send into the watcher's
// buffer: a full buffer drops the event for that watcher only, counted and
// logged, and the publisher is never delayed. Events sent by one goroutine
// arrive at each watcher in send order.
func (b *Bus) Broadcast(topic Topic, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for w := range b.subs[topic] {
		select {
		case w.ch <- ev:
			b.delivered.Add(1)
		default:
			w.dropped.Add(1)
			b.dropped.Add(1)
			logger.Debug("event dropped", "watcher", w.id, "bucket", ev.Bucket, "key", ev.Key)
		}
	}
}

// Stats returns current bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.watchers)
	b.mu.RUnlock()
	return Stats{
		Watchers:  n,
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Watcher receives events for the topics it subscribes to. A watcher owns
// one buffered channel; subscribing it to several topics merges their
// events into that channel.
type Watcher struct {
	id  string
	bus *Bus
	ch  chan Event

	topics  map[Topic]struct{} // guarded by bus.mu
	closed  bool               // guarded by bus.mu
	stop    func() bool        // guarded by bus.mu
	dropped atomic.Uint64
}

// ID returns the watcher's unique identifier.
func (w *Watcher) ID() string {
	return w.id
}

// Events returns the receive side of the watcher. The channel closes when
// the watcher does; events already buffered before Close drain first.
func (w *Watcher) Events() <-chan Event {
	return w.ch
}

// Subscribe adds the watcher to topic. Membership is a set: subscribing
// twice to the same topic still yields one delivery per broadcast, and a
// single Unsubscribe removes it. Subscribing a closed watcher is a no-op.
func (w *Watcher) Subscribe(topic Topic) {
	w.bus.mu.Lock()
	defer w.bus.mu.Unlock()
	if w.closed {
		return
	}
	set, ok := w.bus.subs[topic]
	if !ok {
		set = make(map[*Watcher]struct{})
		w.bus.subs[topic] = set
	}
	set[w] = struct{}{}
	w.topics[topic] = struct{}{}
}

// Unsubscribe removes the watcher from topic. Unsubscribing from a topic
// the watcher never joined is not an error. Only future broadcasts are
// affected; events already buffered remain deliverable.
func (w *Watcher) Unsubscribe(topic Topic) {
	w.bus.mu.Lock()
	defer w.bus.mu.Unlock()
	w.removeLocked(topic)
}

func (w *Watcher) removeLocked(topic Topic) {
	if set, ok := w.bus.subs[topic]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(w.bus.subs, topic)
		}
	}
	delete(w.topics, topic)
}

// Close drops every subscription, detaches the watcher from the bus, and
// closes the event channel. Idempotent. Called explicitly or by the
// watcher's context ending.
func (w *Watcher) Close() {
	w.bus.mu.Lock()
	if w.closed {
		w.bus.mu.Unlock()
		return
	}
	w.closed = true
	for topic := range w.topics {
		w.removeLocked(topic)
	}
	delete(w.bus.watchers, w)
	close(w.ch)
	stop := w.stop
	w.bus.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Dropped returns how many events this watcher lost to a full buffer.
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}
