// Package table implements the concurrent key/value table backing a single
// bucket. Keys are strings, values are arbitrary in-process values. The
// table is sharded: each shard holds an independent map under its own
// read/write mutex, so operations on different keys proceed in parallel and
// no operation funnels through a single goroutine.
package table

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"warren/internal/logging"
)

// DefaultShards is the shard count used when Config.Shards is zero.
const DefaultShards = 16

var (
	ErrUnsupportedKind = errors.New("table: unsupported kind")
	ErrPrivateAccess   = errors.New("table: private tables are not supported")
	ErrShardCount      = errors.New("table: negative shard count")
)

var logger = logging.For("table")

// Kind selects the key semantics of a table.
type Kind int

const (
	// KindSet stores at most one value per key. The only supported kind.
	KindSet Kind = iota
	// KindBag would allow duplicate keys. Rejected at validation.
	KindBag
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindBag:
		return "bag"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "set":
		return KindSet, nil
	case "bag":
		return KindBag, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

// Access selects who may operate on a table.
type Access int

const (
	// AccessShared lets any caller holding the bucket name read and write.
	// The only supported access mode.
	AccessShared Access = iota
	// AccessPrivate would restrict the table to its owner. Rejected at
	// validation.
	AccessPrivate
)

func (a Access) String() string {
	switch a {
	case AccessShared:
		return "shared"
	case AccessPrivate:
		return "private"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// ParseAccess maps a config string to an Access.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "", "shared":
		return AccessShared, nil
	case "private":
		return AccessPrivate, nil
	default:
		return 0, fmt.Errorf("table: unknown access %q", s)
	}
}

// Config carries the creation parameters for a table. The zero value is
// valid: set semantics, shared access, DefaultShards shards.
type Config struct {
	Shards int
	Kind   Kind
	Access Access
}

// Validate rejects configurations the table cannot honor. Buckets require
// unique keys and shared access, so KindBag and AccessPrivate fail here.
func (c Config) Validate() error {
	if c.Kind != KindSet {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, c.Kind)
	}
	if c.Access != AccessShared {
		return ErrPrivateAccess
	}
	if c.Shards < 0 {
		return fmt.Errorf("%w: %d", ErrShardCount, c.Shards)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Shards == 0 {
		c.Shards = DefaultShards
	}
	return c
}

// Entry is one key/value pair as observed by All.
type Entry struct {
	Key   string
	Value any
}

// Stats is a point-in-time snapshot of table counters.
type Stats struct {
	Keys    int
	Gets    uint64
	Puts    uint64
	PutNews uint64
	Deletes uint64
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]any
}

// Table is a concurrent string-to-value map. All methods are safe for
// concurrent use. A table is created by its owning bucket and discarded
// when the bucket terminates; after Close, writes are no-ops and reads
// observe an empty table.
type Table struct {
	shards []*shard
	closed atomic.Bool

	gets    atomic.Uint64
	puts    atomic.Uint64
	putNews atomic.Uint64
	deletes atomic.Uint64
}

// New builds a table from cfg. The configuration is validated first;
// a table is only ever constructed from a config that passed Validate.
func New(cfg Config) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	t := &Table{shards: make([]*shard, cfg.Shards)}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]any)}
	}
	return t, nil
}

func (t *Table) shardFor(key string) *shard {
	return t.shards[xxhash.Sum64String(key)%uint64(len(t.shards))]
}

// Get returns the value stored under key. A read sees every write that
// completed before it began; it holds no ordering against concurrent
// writes to the same key.
func (t *Table) Get(key string) (any, bool) {
	t.gets.Add(1)
	s := t.shardFor(key)
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	return v, ok
}

// Put stores value under key, replacing any existing value. Concurrent
// puts to the same key leave exactly one of the written values.
func (t *Table) Put(key string, value any) {
	t.puts.Add(1)
	s := t.shardFor(key)
	s.mu.Lock()
	if !t.closed.Load() {
		s.entries[key] = value
	}
	s.mu.Unlock()
}

// PutNew stores value under key only if the key is absent. The check and
// the insert happen atomically under the shard lock: of any number of
// concurrent PutNew calls for the same absent key, exactly one returns
// true.
func (t *Table) PutNew(key string, value any) bool {
	t.putNews.Add(1)
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	if _, exists := s.entries[key]; exists {
		return false
	}
	s.entries[key] = value
	return true
}

// Delete removes key and reports whether it was present. Deleting an
// absent key is not an error.
func (t *Table) Delete(key string) bool {
	t.deletes.Add(1)
	s := t.shardFor(key)
	s.mu.Lock()
	_, existed := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	return existed
}

// Exists reports whether key currently holds a value.
func (t *Table) Exists(key string) bool {
	s := t.shardFor(key)
	s.mu.RLock()
	_, ok := s.entries[key]
	s.mu.RUnlock()
	return ok
}

// All returns a copy of every entry. Shards are copied one at a time under
// their read locks: a mutation concurrent with All may or may not appear,
// but every returned entry is a value that was stored at some point.
func (t *Table) All() []Entry {
	out := make([]Entry, 0, t.Len())
	for _, s := range t.shards {
		s.mu.RLock()
		for k, v := range s.entries {
			out = append(out, Entry{Key: k, Value: v})
		}
		s.mu.RUnlock()
	}
	return out
}

// Keys returns all keys in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, t.Len())
	for _, s := range t.shards {
		s.mu.RLock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// Shards returns the shard count the table was built with.
func (t *Table) Shards() int {
	return len(t.shards)
}

// Len returns the number of stored keys.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Close discards all entries and marks the table closed. Writes that
// arrive after Close are no-ops. Close is idempotent; only the owning
// bucket calls it, during teardown.
func (t *Table) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.entries = make(map[string]any)
		s.mu.Unlock()
	}
	logger.Debug("table closed", "discarded_keys", n)
}

// Stats returns current counter values.
func (t *Table) Stats() Stats {
	return Stats{
		Keys:    t.Len(),
		Gets:    t.gets.Load(),
		Puts:    t.puts.Load(),
		PutNews: t.putNews.Load(),
		Deletes: t.deletes.Load(),
	}
}
