package guard

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/locallock"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
)

// CanonicalIDs returns ids deduplicated and sorted ascending. Every caller
// that locks a set of resources goes through it so that no two requests
// acquire an overlapping set in different orders.
func CanonicalIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// LockNames builds one SERVICE_LOCK name per id, in canonical order. scope
// keys come before the id in every name.
func LockNames(n lockkey.Namer, operation string, ids []int64, scope ...string) []string {
	ids = CanonicalIDs(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		keys := append(slices.Clone(scope), strconv.FormatInt(id, 10))
		names[i] = n.Name(lockkey.TagServiceLock, operation, keys...)
	}
	return names
}

// MultiLock holds several named locks at once: local then distributed,
// each in the given order, released in reverse.
type MultiLock struct {
	local     *locallock.Registry
	locker    distlock.Locker
	waitTime  time.Duration
	leaseTime time.Duration
}

func NewMultiLock(local *locallock.Registry, locker distlock.Locker, waitTime, leaseTime time.Duration) *MultiLock {
	return &MultiLock{local: local, locker: locker, waitTime: waitTime, leaseTime: leaseTime}
}

// Run executes fn while holding every name. names must already be in
// canonical order.
func (m *MultiLock) Run(ctx context.Context, names []string, fn func(ctx context.Context) error) error {
	ctx = distlock.EnsureHolder(ctx)

	locals := make([]*locallock.Lock, 0, len(names))
	defer func() {
		for i := len(locals) - 1; i >= 0; i-- {
			locals[i].Unlock()
			locals[i].Release()
		}
	}()
	for _, name := range names {
		l := m.local.Get(name)
		if err := l.Lock(ctx); err != nil {
			l.Release()
			return errno.ErrLockAcquisitionFailure.Wrap(err)
		}
		locals = append(locals, l)
	}

	handles := make([]*distlock.Handle, 0, len(names))
	defer func() {
		for i := len(handles) - 1; i >= 0; i-- {
			release(ctx, handles[i])
		}
	}()
	for _, name := range names {
		h, err := m.locker.TryLock(ctx, distlock.Spec{
			Type:      distlock.Reentrant,
			Name:      name,
			WaitTime:  m.waitTime,
			LeaseTime: m.leaseTime,
		})
		if errors.Is(err, distlock.ErrTimeout) {
			return errno.ErrLockAcquisitionTimeout.WithMsg("lock %s not acquired within %s", name, m.waitTime)
		}
		if err != nil {
			return errno.ErrLockAcquisitionFailure.Wrap(err)
		}
		handles = append(handles, h)
	}

	return fn(ctx)
}

// OrderedLock runs the operation under m with the names derived from the
// request.
func OrderedLock[Req, Resp any](m *MultiLock, names func(req Req) []string) Middleware[Req, Resp] {
	return func(next Func[Req, Resp]) Func[Req, Resp] {
		return func(ctx context.Context, req Req) (Resp, error) {
			var resp Resp
			err := m.Run(ctx, names(req), func(ctx context.Context) error {
				var err error
				resp, err = next(ctx, req)
				return err
			})
			return resp, err
		}
	}
}
