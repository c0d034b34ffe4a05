package warren

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"warren/registry"
	"warren/table"
	"warren/watch"
)

// State is a bucket's position in its lifecycle.
type State int32

const (
	StateStarting State = iota
	StateValidating
	StatePublished
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateValidating:
		return "validating"
	case StatePublished:
		return "published"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// BucketOptions carries the start parameters for one bucket.
type BucketOptions struct {
	// Table controls the backing table. The zero value is valid.
	Table table.Config

	// OnEvent, when set, is invoked synchronously after each successful
	// mutation in place of the pub/sub bus: a point-to-point variant for
	// callers that want exactly one observer and no fan-out machinery.
	// Leave nil to broadcast on the store's bus.
	OnEvent func(watch.Event)
}

// Bucket is the owner of one named table. It is created by StartBucket,
// holds the registry lease for its name, and tears both down when its
// context ends or Stop is called. After startup it does no per-operation
// work; reads and writes go straight to the table through the facade.
type Bucket struct {
	name    string
	table   *table.Table
	lease   *registry.Lease[*Bucket]
	onEvent func(watch.Event)

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// StartBucket creates the bucket's table, validates its configuration,
// claims name in the registry, checks the fresh table with a
// write/read/delete round-trip, and publishes the bucket. On return the
// bucket is running and name resolves through every facade operation.
//
// Startup fails with ErrBucketName for an empty name, a table
// configuration error when the config cannot yield a unique-key shared
// table, ErrBucketExists when name is already claimed, or a table check
// error when the round-trip misbehaves; of concurrent starts for the
// same name exactly one wins. A failed startup registers nothing.
//
// The bucket lives until ctx ends or Stop is called. Either way teardown
// releases the name and discards the table, after which operations on
// name fail with ErrUnknownBucket.
func (s *Store) StartBucket(ctx context.Context, name string, opts BucketOptions) (*Bucket, error) {
	if name == "" {
		return nil, ErrBucketName
	}
	b := &Bucket{
		name:    name,
		onEvent: opts.OnEvent,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.state.Store(int32(StateStarting))

	b.setState(StateValidating)
	if err := opts.Table.Validate(); err != nil {
		b.fail()
		return nil, fmt.Errorf("bucket %q: %w", name, err)
	}
	lease, err := s.registry.Register(name)
	if err != nil {
		b.fail()
		if errors.Is(err, registry.ErrAlreadyRegistered) {
			return nil, fmt.Errorf("%w: %q", ErrBucketExists, name)
		}
		return nil, err
	}
	tbl, err := table.New(opts.Table)
	if err != nil {
		lease.Release()
		b.fail()
		return nil, fmt.Errorf("bucket %q: %w", name, err)
	}
	if err := checkTable(tbl); err != nil {
		lease.Release()
		tbl.Close()
		b.fail()
		return nil, fmt.Errorf("bucket %q: %w", name, err)
	}
	b.table = tbl
	b.lease = lease

	if err := lease.Update(b); err != nil {
		lease.Release()
		tbl.Close()
		b.fail()
		return nil, fmt.Errorf("bucket %q: %w", name, err)
	}
	b.setState(StatePublished)
	b.setState(StateRunning)
	logger.Info("bucket running", "bucket", name, "shards", tbl.Shards())

	go b.run(ctx)
	return b, nil
}

// checkTable runs one write, readback, and delete against a fresh table
// before it is published. The name is still only claimed, so the key is
// never visible to any other caller and no event is emitted for it.
func checkTable(tbl *table.Table) error {
	const key = "warren.table-check"
	tbl.Put(key, key)
	v, ok := tbl.Get(key)
	if !ok || v != key {
		return fmt.Errorf("table check: wrote %q, read back %v (present=%t)", key, v, ok)
	}
	if !tbl.Delete(key) {
		return fmt.Errorf("table check: %q missing on delete", key)
	}
	return nil
}

// run idles until shutdown. The manager owns no per-operation work; its
// only job after startup is tying the bucket's resources to its lifetime.
func (b *Bucket) run(ctx context.Context) {
	defer close(b.done)
	defer b.teardown()

	var ctxDone <-chan struct{}
	if ctx != nil {
		ctxDone = ctx.Done()
	}
	select {
	case <-ctxDone:
	case <-b.stop:
	}
}

func (b *Bucket) teardown() {
	b.lease.Release()
	b.table.Close()
	b.setState(StateTerminated)
	logger.Info("bucket terminated", "bucket", b.name)
}

// fail marks a startup that never published.
func (b *Bucket) fail() {
	b.setState(StateTerminated)
	close(b.done)
}

func (b *Bucket) setState(s State) {
	b.state.Store(int32(s))
}

// Name returns the bucket's registered name.
func (b *Bucket) Name() string {
	return b.name
}

// State returns the bucket's current lifecycle state.
func (b *Bucket) State() State {
	return State(b.state.Load())
}

// Stop terminates the bucket. Idempotent; it returns without waiting,
// use Done to observe completed teardown.
func (b *Bucket) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// Done is closed once teardown finished: the name is released and the
// table discarded.
func (b *Bucket) Done() <-chan struct{} {
	return b.done
}

// Len returns the number of keys currently stored.
func (b *Bucket) Len() int {
	return b.table.Len()
}

// TableStats returns the bucket's table counters.
func (b *Bucket) TableStats() table.Stats {
	return b.table.Stats()
}
