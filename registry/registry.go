// Package registry provides the process-wide directory that maps bucket
// names to live handles. Registration is two-phase: an owner first claims a
// name, receiving a Lease, and only later publishes a handle through it.
// Claimed-but-unpublished names are invisible to Resolve, so a bucket never
// becomes discoverable before its owner finished validating it, while
// concurrent claims for the same name still fail deterministically.
//
// The registry is generic over the handle type and knows nothing about
// what a handle contains.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"warren/internal/logging"
)

var (
	ErrAlreadyRegistered = errors.New("registry: name already registered")
	ErrNotFound          = errors.New("registry: name not registered")
	ErrLeaseReleased     = errors.New("registry: lease already released")
)

var logger = logging.For("registry")

type entry[H any] struct {
	handle    H
	published bool
}

// Registry maps names to published handles. All methods are safe for
// concurrent use; callers never take external locks.
type Registry[H any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[H]
}

// New returns an empty registry.
func New[H any]() *Registry[H] {
	return &Registry[H]{entries: make(map[string]*entry[H])}
}

// Register claims name and returns the lease controlling it. The claim is
// atomic: of any number of concurrent Register calls for the same name,
// exactly one succeeds and the rest fail with ErrAlreadyRegistered. The
// name does not resolve until the lease publishes a handle via Update.
func (r *Registry[H]) Register(name string) (*Lease[H], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	r.entries[name] = &entry[H]{}
	logger.Debug("name claimed", "name", name)
	return &Lease[H]{reg: r, name: name}, nil
}

// Resolve returns the handle published under name. Unknown names, names
// that are claimed but not yet published, and released names all fail with
// ErrNotFound. A successful Resolve reflects a completed Update; once the
// owning lease releases, no subsequent Resolve returns the stale handle.
func (r *Registry[H]) Resolve(name string) (H, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || !e.published {
		var zero H
		return zero, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.handle, nil
}

// Names returns the published names in sorted order.
func (r *Registry[H]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.published {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of published names.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.published {
			n++
		}
	}
	return n
}

// Lease is the capability an owner holds over one claimed name. Only the
// lease can publish, replace, or remove the entry; it is bound to the
// owner's lifetime and released exactly once during teardown.
type Lease[H any] struct {
	reg      *Registry[H]
	name     string
	released bool // guarded by reg.mu
}

// Name returns the claimed name.
func (l *Lease[H]) Name() string {
	return l.name
}

// Update publishes h under the leased name, replacing any previously
// published handle. After the first Update the name resolves.
func (l *Lease[H]) Update(h H) error {
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	if l.released {
		return fmt.Errorf("%w: %q", ErrLeaseReleased, l.name)
	}
	e := l.reg.entries[l.name]
	e.handle = h
	e.published = true
	return nil
}

// Release removes the entry, published or not. Idempotent; after Release
// the name is free to claim again.
func (l *Lease[H]) Release() {
	l.reg.mu.Lock()
	defer l.reg.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	delete(l.reg.entries, l.name)
	logger.Debug("name released", "name", l.name)
}
