package distlock

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"
)

var (
	//go:embed scripts/reentrant_lock.lua
	reentrantLockLua string
	//go:embed scripts/read_lock.lua
	readLockLua string
	//go:embed scripts/write_lock.lua
	writeLockLua string
	//go:embed scripts/unlock.lua
	unlockLua string
	//go:embed scripts/renew.lua
	renewLua string
	//go:embed scripts/prune.lua
	pruneLua string

	reentrantLockScript = redis.NewScript(reentrantLockLua)
	readLockScript      = redis.NewScript(pruneLua + readLockLua)
	writeLockScript     = redis.NewScript(pruneLua + writeLockLua)
	unlockScript        = redis.NewScript(pruneLua + unlockLua)
	renewScript         = redis.NewScript(pruneLua + renewLua)
)

const (
	DefaultLease        = 30 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

// Option configures a RedisLocker.
type Option func(*RedisLocker)

// WithDefaultLease sets the lease used when a Spec has none.
func WithDefaultLease(d time.Duration) Option {
	return func(l *RedisLocker) {
		if d > 0 {
			l.defaultLease = d
		}
	}
}

// WithPollInterval sets how often a waiting acquisition retries.
func WithPollInterval(d time.Duration) Option {
	return func(l *RedisLocker) {
		if d > 0 {
			l.poll = d
		}
	}
}

// RedisLocker stores each lock as a hash of holder field to hold count.
// Read holds also carry a per-reader lease key so a crashed reader expires
// on its own while other readers keep the lock alive.
type RedisLocker struct {
	rdb          redis.Scripter
	instance     string
	defaultLease time.Duration
	poll         time.Duration
}

// NewRedisLocker returns a locker bound to rdb. Every locker gets its own
// instance id so holders of different processes never collide.
func NewRedisLocker(rdb redis.Scripter, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		rdb:          rdb,
		instance:     uuid.NewString(),
		defaultLease: DefaultLease,
		poll:         DefaultPollInterval,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// TryLock acquires spec.Name, polling until spec.WaitTime elapses.
func (l *RedisLocker) TryLock(ctx context.Context, spec Spec) (*Handle, error) {
	lease, watchdog := spec.LeaseTime, false
	if lease <= 0 {
		lease, watchdog = l.defaultLease, true
	}
	holder, ok := HolderFrom(ctx)
	if !ok {
		holder = uuid.NewString()
	}

	var deadline time.Time
	if spec.WaitTime > 0 {
		deadline = time.Now().Add(spec.WaitTime)
	}
	for {
		field, ok, err := l.acquire(ctx, spec.Type, spec.Name, holder, lease)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.handle(spec, field, lease, watchdog), nil
		}
		if spec.WaitTime == 0 {
			return nil, ErrTimeout
		}
		wait := l.poll
		if spec.WaitTime > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, ErrTimeout
			}
			wait = min(wait, remaining)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Unlock releases one hold of name by the holder carried in ctx. Unlocking
// a lock the caller does not hold is logged and ignored.
func (l *RedisLocker) Unlock(ctx context.Context, typ LockType, name string) error {
	holder, ok := HolderFrom(ctx)
	if !ok {
		logx.WithContext(ctx).Infof("distlock: unlock of %s lock %q without holder ignored", typ, name)
		return nil
	}
	return l.unlock(ctx, typ, name, l.field(typ, holder), l.defaultLease)
}

func (l *RedisLocker) field(typ LockType, holder string) string {
	base := l.instance + ":" + holder
	switch typ {
	case Read:
		return base + ":r"
	case Write:
		return base + ":w"
	default:
		return base
	}
}

func (l *RedisLocker) acquire(ctx context.Context, typ LockType, name, holder string, lease time.Duration) (string, bool, error) {
	field := l.field(typ, holder)
	keys := []string{name}
	var (
		n   int64
		err error
	)
	switch typ {
	case Read:
		n, err = readLockScript.Run(ctx, l.rdb, keys, lease.Milliseconds(), field, l.field(Write, holder)).Int64()
	case Write:
		n, err = writeLockScript.Run(ctx, l.rdb, keys, lease.Milliseconds(), field).Int64()
	default:
		n, err = reentrantLockScript.Run(ctx, l.rdb, keys, lease.Milliseconds(), field).Int64()
	}
	if err != nil {
		return "", false, err
	}
	return field, n == 1, nil
}

func (l *RedisLocker) unlock(ctx context.Context, typ LockType, name, field string, lease time.Duration) error {
	n, err := unlockScript.Run(ctx, l.rdb, []string{name}, lease.Milliseconds(), field).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		logx.WithContext(ctx).Infof("distlock: %s lock %q not held, unlock ignored", typ, name)
	}
	return nil
}

func (l *RedisLocker) handle(spec Spec, field string, lease time.Duration, watchdog bool) *Handle {
	stop := func() {}
	if watchdog {
		var wctx context.Context
		wctx, stop = context.WithCancel(context.Background())
		go l.renew(wctx, spec.Name, field, lease)
	}
	return NewHandle(spec.Type, spec.Name, func(ctx context.Context) error {
		stop()
		return l.unlock(ctx, spec.Type, spec.Name, field, lease)
	})
}

// renew extends the lease every third of its length until ctx is
// cancelled or the hold disappears.
func (l *RedisLocker) renew(ctx context.Context, name, field string, lease time.Duration) {
	t := time.NewTicker(lease / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		n, err := renewScript.Run(ctx, l.rdb, []string{name}, lease.Milliseconds(), field).Int64()
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			logx.Errorf("distlock: renew %q: %v", name, err)
		case n == 0:
			return
		}
	}
}
