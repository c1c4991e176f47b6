package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/locallock"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
)

func newDeps() (Deps, *fakeLocker, *memFlags) {
	l, f := newFakeLocker(), newMemFlags()
	return Deps{Locker: l, Local: locallock.NewRegistry(), Flags: f, Namer: lockkey.Namer{Prefix: "test"}}, l, f
}

func TestChainOrder(t *testing.T) {
	var calls []string
	mw := func(tag string) Middleware[int, int] {
		return func(next Func[int, int]) Func[int, int] {
			return func(ctx context.Context, req int) (int, error) {
				calls = append(calls, tag)
				return next(ctx, req)
			}
		}
	}
	fn := Chain(func(_ context.Context, req int) (int, error) {
		calls = append(calls, "op")
		return req * 2, nil
	}, mw("outer"), mw("inner"))

	got, err := fn(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"outer", "inner", "op"}, calls)
}

func TestRepeatLimit(t *testing.T) {
	const name = "test-REPEAT_EXECUTE_LIMIT:create_order:1:9"
	req := orderReq{UserID: 1, ProgramID: 9}
	opts := RepeatLimitOptions[orderReq]{Operation: "create_order", Keys: []string{"#req.UserID", "#req.ProgramID"}, Hold: time.Minute}

	t.Run("success writes flag and releases locks", func(t *testing.T) {
		d, locker, flags := newDeps()
		mw, err := RepeatLimit[orderReq, string](d, opts)
		require.NoError(t, err)
		got, err := mw(func(context.Context, orderReq) (string, error) { return "ok", nil })(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "ok", got)

		ok, _ := flags.Exists(context.Background(), name)
		assert.True(t, ok)
		assert.False(t, locker.held(name))
		assert.Equal(t, 0, d.Local.Len())

		_, err = mw(func(context.Context, orderReq) (string, error) { return "again", nil })(context.Background(), req)
		assert.ErrorIs(t, err, errno.ErrDuplicateRequest, "completed request is rejected for the hold duration")
	})

	t.Run("failure writes no flag", func(t *testing.T) {
		d, locker, flags := newDeps()
		mw, err := RepeatLimit[orderReq, string](d, opts)
		require.NoError(t, err)
		_, err = mw(func(context.Context, orderReq) (string, error) { return "", errBoom })(context.Background(), req)
		assert.ErrorIs(t, err, errBoom)
		ok, _ := flags.Exists(context.Background(), name)
		assert.False(t, ok)
		assert.False(t, locker.held(name))
		assert.Equal(t, 0, d.Local.Len())
	})

	t.Run("zero hold writes no flag", func(t *testing.T) {
		d, _, flags := newDeps()
		o := opts
		o.Hold = 0
		mw, err := RepeatLimit[orderReq, string](d, o)
		require.NoError(t, err)
		_, err = mw(func(context.Context, orderReq) (string, error) { return "ok", nil })(context.Background(), req)
		require.NoError(t, err)
		ok, _ := flags.Exists(context.Background(), name)
		assert.False(t, ok)
	})

	t.Run("flag write failure is swallowed", func(t *testing.T) {
		d, _, flags := newDeps()
		flags.markErr = errors.New("redis down")
		mw, err := RepeatLimit[orderReq, string](d, opts)
		require.NoError(t, err)
		got, err := mw(func(context.Context, orderReq) (string, error) { return "ok", nil })(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	})

	t.Run("existing flag short-circuits", func(t *testing.T) {
		d, _, flags := newDeps()
		flags.set(name)
		mw, err := RepeatLimit[orderReq, string](d, opts)
		require.NoError(t, err)
		var ran bool
		_, err = mw(func(context.Context, orderReq) (string, error) { ran = true; return "", nil })(context.Background(), req)
		assert.ErrorIs(t, err, errno.ErrDuplicateRequest)
		assert.False(t, ran)
	})

	t.Run("distributed lock held elsewhere", func(t *testing.T) {
		d, locker, _ := newDeps()
		other := distlock.WithHolder(context.Background(), "other-process")
		h, err := locker.TryLock(other, distlock.Spec{Name: name})
		require.NoError(t, err)
		defer h.Release(other)

		mw, err := RepeatLimit[orderReq, string](d, opts)
		require.NoError(t, err)
		_, err = mw(func(context.Context, orderReq) (string, error) { return "", nil })(context.Background(), req)
		assert.ErrorIs(t, err, errno.ErrDuplicateRequest)
		assert.Equal(t, 0, d.Local.Len())
	})

	t.Run("lock backend failure", func(t *testing.T) {
		d, locker, _ := newDeps()
		locker.failOn[name] = errors.New("conn refused")
		mw, err := RepeatLimit[orderReq, string](d, opts)
		require.NoError(t, err)
		_, err = mw(func(context.Context, orderReq) (string, error) { return "", nil })(context.Background(), req)
		assert.ErrorIs(t, err, errno.ErrLockAcquisitionFailure)
	})

	t.Run("concurrent duplicates run once", func(t *testing.T) {
		d, _, _ := newDeps()
		mw, err := RepeatLimit[orderReq, string](d, opts)
		require.NoError(t, err)

		var runs, dups int32
		start := make(chan struct{})
		fn := mw(func(context.Context, orderReq) (string, error) {
			atomic.AddInt32(&runs, 1)
			time.Sleep(20 * time.Millisecond)
			return "ok", nil
		})
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := fn(context.Background(), req); errors.Is(err, errno.ErrDuplicateRequest) {
					atomic.AddInt32(&dups, 1)
				}
			}()
		}
		close(start)
		wg.Wait()
		assert.Equal(t, int32(1), runs)
		assert.Equal(t, int32(9), dups)
	})

	t.Run("malformed template", func(t *testing.T) {
		d, _, _ := newDeps()
		_, err := RepeatLimit[orderReq, string](d, RepeatLimitOptions[orderReq]{Operation: "x", Keys: []string{"#"}})
		assert.Error(t, err)
	})
}

func TestServiceLockPolicies(t *testing.T) {
	const name = "test-SERVICE_LOCK:update_program:9"
	req := orderReq{ProgramID: 9}
	op := func(context.Context, orderReq) (string, error) { return "guarded", nil }

	hold := func(t *testing.T, l *fakeLocker) {
		other := distlock.WithHolder(context.Background(), "other")
		h, err := l.TryLock(other, distlock.Spec{Name: name})
		require.NoError(t, err)
		t.Cleanup(func() { _ = h.Release(other) })
	}

	tests := map[string]struct {
		policy   TimeoutPolicy
		fallback Func[orderReq, string]
		want     string
		wantErr  error
	}{
		"fail fast":   {policy: FailFast, wantErr: errno.ErrLockAcquisitionTimeout},
		"fallback":    {policy: Fallback, fallback: func(_ context.Context, r orderReq) (string, error) { return "fallback", nil }, want: "fallback"},
		"unprotected": {policy: ProceedUnprotected, want: "guarded"},
	}
	for label, tc := range tests {
		t.Run(label, func(t *testing.T) {
			d, locker, _ := newDeps()
			hold(t, locker)
			mw, err := ServiceLock(d, LockOptions[orderReq, string]{
				Operation: "update_program",
				Keys:      []string{"#req.ProgramID"},
				WaitTime:  5 * time.Millisecond,
				Policy:    tc.policy,
				Fallback:  tc.fallback,
			})
			require.NoError(t, err)
			got, err := mw(op)(context.Background(), req)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("acquired and released", func(t *testing.T) {
		d, locker, _ := newDeps()
		mw, err := ServiceLock(d, LockOptions[orderReq, string]{Operation: "update_program", Keys: []string{"#req.ProgramID"}})
		require.NoError(t, err)
		got, err := mw(func(context.Context, orderReq) (string, error) {
			assert.True(t, locker.held(name))
			return "guarded", nil
		})(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "guarded", got)
		assert.False(t, locker.held(name))
	})

	t.Run("fallback without func rejected at registration", func(t *testing.T) {
		d, _, _ := newDeps()
		_, err := ServiceLock(d, LockOptions[orderReq, string]{Operation: "x", Policy: Fallback})
		assert.Error(t, err)
	})
}

func TestCanonicalIDs(t *testing.T) {
	assert.Equal(t, []int64{2, 3, 7}, CanonicalIDs([]int64{7, 2, 7, 3, 2}))
	assert.Empty(t, CanonicalIDs(nil))
	in := []int64{5, 1}
	CanonicalIDs(in)
	assert.Equal(t, []int64{5, 1}, in, "input is not reordered")
}

func TestLockNamesScope(t *testing.T) {
	n := lockkey.Namer{Prefix: "test"}
	assert.Equal(t, []string{
		"test-SERVICE_LOCK:order:11:1",
		"test-SERVICE_LOCK:order:11:4",
	}, LockNames(n, "order", []int64{4, 1, 4}, "11"))
}

func TestMultiLockOrdering(t *testing.T) {
	d, locker, _ := newDeps()
	m := NewMultiLock(d.Local, locker, time.Second, time.Minute)
	names := LockNames(d.Namer, "order", []int64{7, 2})
	require.Equal(t, []string{"test-SERVICE_LOCK:order:2", "test-SERVICE_LOCK:order:7"}, names)

	err := m.Run(context.Background(), names, func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{
		"lock test-SERVICE_LOCK:order:2",
		"lock test-SERVICE_LOCK:order:7",
		"unlock test-SERVICE_LOCK:order:7",
		"unlock test-SERVICE_LOCK:order:2",
	}, locker.log())
	assert.Equal(t, 0, d.Local.Len())
}

func TestMultiLockAbortsOnFailure(t *testing.T) {
	d, locker, _ := newDeps()
	names := LockNames(d.Namer, "order", []int64{1, 2, 3})
	locker.failOn[names[1]] = errors.New("conn refused")
	m := NewMultiLock(d.Local, locker, time.Second, time.Minute)

	var ran bool
	err := m.Run(context.Background(), names, func(context.Context) error { ran = true; return nil })
	assert.ErrorIs(t, err, errno.ErrLockAcquisitionFailure)
	assert.False(t, ran)
	assert.Equal(t, []string{"lock " + names[0], "unlock " + names[0]}, locker.log())
	assert.Equal(t, 0, d.Local.Len())
}

func TestMultiLockTimeout(t *testing.T) {
	d, locker, _ := newDeps()
	names := LockNames(d.Namer, "order", []int64{4})
	other := distlock.WithHolder(context.Background(), "other")
	h, err := locker.TryLock(other, distlock.Spec{Name: names[0]})
	require.NoError(t, err)
	defer h.Release(other)

	m := NewMultiLock(d.Local, locker, 5*time.Millisecond, time.Minute)
	err = m.Run(context.Background(), names, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, errno.ErrLockAcquisitionTimeout)
}

func TestMultiLockOverlappingSetsDoNotDeadlock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	locker := distlock.NewRedisLocker(rdb, distlock.WithPollInterval(time.Millisecond))
	namer := lockkey.Namer{Prefix: "test"}
	m := NewMultiLock(locallock.NewRegistry(), locker, 5*time.Second, time.Minute)

	var wg sync.WaitGroup
	var done int32
	for i := 0; i < 20; i++ {
		ids := []int64{3, 5}
		if i%2 == 1 {
			ids = []int64{5, 3}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Run(context.Background(), LockNames(namer, "order", ids), func(context.Context) error {
				time.Sleep(time.Millisecond)
				return nil
			})
			if assert.NoError(t, err) {
				atomic.AddInt32(&done, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), done)
	assert.Empty(t, mr.Keys())
}

func TestOrderedLockMiddleware(t *testing.T) {
	d, locker, _ := newDeps()
	m := NewMultiLock(d.Local, locker, time.Second, time.Minute)
	mw := OrderedLock[[]int64, int](m, func(ids []int64) []string { return LockNames(d.Namer, "order", ids) })

	got, err := mw(func(_ context.Context, ids []int64) (int, error) {
		for _, n := range LockNames(d.Namer, "order", ids) {
			assert.True(t, locker.held(n))
		}
		return len(ids), nil
	})(context.Background(), []int64{9, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestRedisFlagStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisFlagStore(rdb, "idem:")
	ctx := context.Background()

	ok, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Mark(ctx, "a", time.Minute))
	ok, err = s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	got, _ := mr.Get("idem:a")
	assert.Equal(t, FlagValue, got)

	mr.FastForward(2 * time.Minute)
	ok, _ = s.Exists(ctx, "a")
	assert.False(t, ok)
}
