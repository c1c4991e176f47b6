// Package locallock provides process-local named locks. A Registry is
// constructed explicitly and injected into every consumer; there is no
// package-level lock map.
package locallock

import (
	"context"
	"sync"
)

// Registry hands out one exclusive lock per name. Entries are created on
// first use and dropped once no caller references them, so the map does
// not grow with every name ever seen.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Get returns the lock for name. The caller owns a reference to the entry
// until it calls Release; two callers with the same name always see the
// same underlying lock while either holds a reference.
func (r *Registry) Get(name string) *Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.entries[name] = e
	}
	e.refs++
	return &Lock{name: name, r: r, e: e}
}

// Len reports how many names currently have an entry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) release(name string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs <= 0 && r.entries[name] == e {
		delete(r.entries, name)
	}
}

// Lock is an exclusive, non-reentrant and non-fair lock. A holder that
// calls Lock again on the same name blocks itself.
type Lock struct {
	name     string
	r        *Registry
	e        *entry
	released sync.Once
}

// Name returns the lock name.
func (l *Lock) Name() string { return l.name }

// Lock blocks until the lock is acquired or ctx is done.
func (l *Lock) Lock(ctx context.Context) error {
	select {
	case l.e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock acquires the lock only if it is free.
func (l *Lock) TryLock() bool {
	select {
	case l.e.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases a held lock. Unlocking a free lock is a no-op that
// reports false.
func (l *Lock) Unlock() bool {
	select {
	case <-l.e.sem:
		return true
	default:
		return false
	}
}

// Release drops this caller's reference to the registry entry. It must be
// called after the final Unlock; later calls are ignored.
func (l *Lock) Release() {
	l.released.Do(func() { l.r.release(l.name, l.e) })
}
