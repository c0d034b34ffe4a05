package warren

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"warren/internal/logging"
	"warren/table"
	"warren/watch"
)

var logger = logging.For("store")

// Store is the operation surface over named buckets. Every call resolves
// the bucket name through the registry and then operates on the table
// directly; the owning bucket manager is never on the hot path. Mutations
// additionally publish change events, asynchronously and best-effort, on
// the key topic and the whole-bucket topic.
//
// A Store is safe for concurrent use by any number of goroutines.
type Store struct {
	registry *Registry
	bus      *watch.Bus
	clock    clock.Clock

	deleteNotify NotifyPolicy
	watchBuffer  int

	events atomic.Uint64
}

// New returns a store wired per opts; see Options for the defaults.
func New(opts Options) *Store {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Bus == nil {
		opts.Bus = watch.NewBus()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Store{
		registry:     opts.Registry,
		bus:          opts.Bus,
		clock:        opts.Clock,
		deleteNotify: opts.DeleteNotify,
		watchBuffer:  opts.WatchBuffer,
	}
}

func (s *Store) handle(bucket string) (*Bucket, error) {
	b, err := s.registry.Resolve(bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	return b, nil
}

// emit publishes one mutation event: to the bucket's synchronous callback
// when it has one, otherwise to the key topic and the bucket topic.
func (s *Store) emit(b *Bucket, kind watch.Kind, key string, value any) {
	s.events.Add(1)
	ev := watch.Event{
		Kind:   kind,
		Bucket: b.name,
		Key:    key,
		Value:  value,
		Time:   s.clock.Now(),
	}
	if b.onEvent != nil {
		b.onEvent(ev)
		return
	}
	s.bus.Broadcast(watch.KeyTopic(b.name, key), ev)
	s.bus.Broadcast(watch.BucketTopic(b.name), ev)
}

// Get returns the value under key, or def when the key is absent.
func (s *Store) Get(bucket, key string, def any) (any, error) {
	b, err := s.handle(bucket)
	if err != nil {
		return nil, err
	}
	v, ok := b.table.Get(key)
	if !ok {
		return def, nil
	}
	return v, nil
}

// Fetch returns the value under key and whether it was present.
func (s *Store) Fetch(bucket, key string) (any, bool, error) {
	b, err := s.handle(bucket)
	if err != nil {
		return nil, false, err
	}
	v, ok := b.table.Get(key)
	return v, ok, nil
}

// Put stores value under key, replacing any existing value, and emits an
// updated event.
func (s *Store) Put(bucket, key string, value any) error {
	b, err := s.handle(bucket)
	if err != nil {
		return err
	}
	b.table.Put(key, value)
	s.emit(b, watch.KindUpdated, key, value)
	return nil
}

// PutNew stores value only if key is absent and reports whether it did.
// An existing key is not an error; it is the documented rejection
// outcome, and a rejected PutNew emits nothing.
func (s *Store) PutNew(bucket, key string, value any) (bool, error) {
	b, err := s.handle(bucket)
	if err != nil {
		return false, err
	}
	if !b.table.PutNew(key, value) {
		return false, nil
	}
	s.emit(b, watch.KindUpdated, key, value)
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error. A deleted
// event is emitted per the store's NotifyPolicy: always by default, or
// only for keys that were present under NotifyExisting.
func (s *Store) Delete(bucket, key string) error {
	b, err := s.handle(bucket)
	if err != nil {
		return err
	}
	existed := b.table.Delete(key)
	if existed || s.deleteNotify == NotifyAlways {
		s.emit(b, watch.KindDeleted, key, nil)
	}
	return nil
}

// Exists reports whether key holds a value. Never emits.
func (s *Store) Exists(bucket, key string) (bool, error) {
	b, err := s.handle(bucket)
	if err != nil {
		return false, err
	}
	return b.table.Exists(key), nil
}

// All returns a copy of every entry in the bucket. A mutation concurrent
// with All may or may not appear; no torn entry ever does.
func (s *Store) All(bucket string) ([]table.Entry, error) {
	b, err := s.handle(bucket)
	if err != nil {
		return nil, err
	}
	return b.table.All(), nil
}

// Keys returns the bucket's keys in sorted order.
func (s *Store) Keys(bucket string) ([]string, error) {
	b, err := s.handle(bucket)
	if err != nil {
		return nil, err
	}
	return b.table.Keys(), nil
}

// Len returns the bucket's key count.
func (s *Store) Len(bucket string) (int, error) {
	b, err := s.handle(bucket)
	if err != nil {
		return 0, err
	}
	return b.table.Len(), nil
}

// WatchKey returns a watcher subscribed to one key of bucket. The bucket
// does not have to exist yet; events arrive once it does. The watcher
// closes when ctx ends, dropping its subscriptions; stop watching earlier
// with Unsubscribe or Close.
func (s *Store) WatchKey(ctx context.Context, bucket, key string) *watch.Watcher {
	w := s.bus.NewWatcher(ctx, s.watchBuffer)
	w.Subscribe(watch.KeyTopic(bucket, key))
	return w
}

// WatchAll returns a watcher subscribed to every key of bucket, under the
// same lifetime rules as WatchKey.
func (s *Store) WatchAll(ctx context.Context, bucket string) *watch.Watcher {
	w := s.bus.NewWatcher(ctx, s.watchBuffer)
	w.Subscribe(watch.BucketTopic(bucket))
	return w
}

// Bucket returns the live bucket registered under name.
func (s *Store) Bucket(name string) (*Bucket, bool) {
	b, err := s.registry.Resolve(name)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Buckets returns the live bucket names in sorted order.
func (s *Store) Buckets() []string {
	return s.registry.Names()
}

// Stats is a point-in-time snapshot across the store.
type Stats struct {
	Buckets         int
	Watchers        int
	EventsPublished uint64
	EventsDelivered uint64
	EventsDropped   uint64
	Tables          map[string]table.Stats
}

// Stats gathers bucket, watcher and event counters.
func (s *Store) Stats() Stats {
	bs := s.bus.Stats()
	names := s.registry.Names()
	tables := make(map[string]table.Stats, len(names))
	for _, name := range names {
		if b, err := s.registry.Resolve(name); err == nil {
			tables[name] = b.table.Stats()
		}
	}
	return Stats{
		Buckets:         len(names),
		Watchers:        bs.Watchers,
		EventsPublished: s.events.Load(),
		EventsDelivered: bs.Delivered,
		EventsDropped:   bs.Dropped,
		Tables:          tables,
	}
}
