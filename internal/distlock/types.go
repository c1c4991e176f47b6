// Package distlock implements Redis-backed reentrant and read/write locks
// shared by every instance of the service.
package distlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LockType selects the lock semantics.
type LockType int

const (
	Reentrant LockType = iota
	Read
	Write
)

func (t LockType) String() string {
	switch t {
	case Reentrant:
		return "reentrant"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

var (
	// ErrTimeout is returned when the lock could not be acquired within
	// the wait time.
	ErrTimeout = errors.New("distlock: acquisition timed out")
	// ErrNotHeld reports an unlock of a lock the caller does not hold.
	ErrNotHeld = errors.New("distlock: lock not held by caller")
)

// Spec describes one acquisition.
//
// WaitTime 0 tries once, a negative WaitTime waits until ctx is done.
// LeaseTime <= 0 uses the locker's default lease and keeps it renewed
// until the handle is released.
type Spec struct {
	Type      LockType
	Name      string
	WaitTime  time.Duration
	LeaseTime time.Duration
}

// Locker acquires named locks.
type Locker interface {
	TryLock(ctx context.Context, spec Spec) (*Handle, error)
	Unlock(ctx context.Context, typ LockType, name string) error
}

type holderKey struct{}

// WithHolder tags ctx with a holder identity. Acquisitions made with the
// same holder on the same name are reentrant.
func WithHolder(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, holderKey{}, id)
}

// HolderFrom returns the holder identity carried by ctx.
func HolderFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(holderKey{}).(string)
	return id, ok && id != ""
}

// EnsureHolder returns ctx unchanged when it already carries a holder and
// otherwise tags it with a fresh one, so nested acquisitions made during
// one call are reentrant.
func EnsureHolder(ctx context.Context) context.Context {
	if _, ok := HolderFrom(ctx); ok {
		return ctx
	}
	return WithHolder(ctx, uuid.NewString())
}

// Handle is a held lock. Release runs at most once.
type Handle struct {
	typ     LockType
	name    string
	release func(context.Context) error
	once    sync.Once
}

// NewHandle wraps a release func. Locker implementations other than
// RedisLocker use it to hand out handles.
func NewHandle(typ LockType, name string, release func(context.Context) error) *Handle {
	return &Handle{typ: typ, name: name, release: release}
}

func (h *Handle) Type() LockType { return h.typ }
func (h *Handle) Name() string   { return h.name }

// Release unlocks the handle. Only the first call reaches the backend.
func (h *Handle) Release(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		if h.release != nil {
			err = h.release(ctx)
		}
	})
	return err
}
