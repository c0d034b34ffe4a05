package warren

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"

	"warren/registry"
	"warren/watch"
)

// Registry is the bucket directory instantiated for this store's handles.
// Stores sharing one Registry (and one Bus) share their buckets.
type Registry = registry.Registry[*Bucket]

// NewRegistry returns an empty bucket directory, usable as
// Options.Registry for several stores.
func NewRegistry() *Registry {
	return registry.New[*Bucket]()
}

// NotifyPolicy selects when Delete broadcasts a deleted event.
type NotifyPolicy int

const (
	// NotifyAlways emits a deleted event on every Delete call, whether or
	// not the key existed. Idempotent deletion pairs with idempotent
	// notification; observers converge on "key absent" either way.
	NotifyAlways NotifyPolicy = iota

	// NotifyExisting emits only when Delete actually removed a key.
	NotifyExisting
)

// ParseNotifyPolicy maps a configuration string to a NotifyPolicy.
// The empty string selects NotifyAlways.
func ParseNotifyPolicy(s string) (NotifyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return NotifyAlways, nil
	case "existing":
		return NotifyExisting, nil
	default:
		return 0, fmt.Errorf("unknown delete notify policy %q", s)
	}
}

// Options configures a Store. The zero value is usable: a fresh registry,
// a fresh bus, the wall clock, NotifyAlways, and the default watcher
// buffer.
type Options struct {
	// Registry holds the bucket directory. Nil creates a private one.
	Registry *Registry

	// Bus carries change events to watchers. Nil creates a private one.
	Bus *watch.Bus

	// Clock stamps events. Nil uses the wall clock; tests inject
	// clock.NewMock().
	Clock clock.Clock

	// DeleteNotify picks the deleted-event policy, documented on the
	// NotifyPolicy constants.
	DeleteNotify NotifyPolicy

	// WatchBuffer is the per-watcher event buffer for WatchKey and
	// WatchAll. Values <= 0 use watch.DefaultBuffer.
	WatchBuffer int
}
