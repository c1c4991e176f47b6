package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
)

// fakeLocker is an in-memory reentrant locker that records every lock and
// unlock in order.
type fakeLocker struct {
	mu      sync.Mutex
	holders map[string]string
	counts  map[string]int
	events  []string
	failOn  map[string]error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{holders: map[string]string{}, counts: map[string]int{}, failOn: map[string]error{}}
}

func (f *fakeLocker) TryLock(ctx context.Context, spec distlock.Spec) (*distlock.Handle, error) {
	holder, _ := distlock.HolderFrom(ctx)
	deadline := time.Now().Add(spec.WaitTime)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[spec.Name]; err != nil {
		return nil, err
	}
	for {
		cur, held := f.holders[spec.Name]
		if !held || cur == holder {
			f.holders[spec.Name] = holder
			f.counts[spec.Name]++
			f.events = append(f.events, "lock "+spec.Name)
			break
		}
		if spec.WaitTime == 0 || (spec.WaitTime > 0 && time.Now().After(deadline)) {
			return nil, distlock.ErrTimeout
		}
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
		f.mu.Lock()
	}
	name := spec.Name
	return distlock.NewHandle(spec.Type, name, func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.counts[name]--
		if f.counts[name] <= 0 {
			delete(f.holders, name)
			delete(f.counts, name)
		}
		f.events = append(f.events, "unlock "+name)
		return nil
	}), nil
}

func (f *fakeLocker) Unlock(context.Context, distlock.LockType, string) error { return nil }

func (f *fakeLocker) held(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.holders[name]
	return ok
}

func (f *fakeLocker) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// memFlags is an in-memory FlagStore.
type memFlags struct {
	mu      sync.Mutex
	flags   map[string]time.Duration
	markErr error
}

func newMemFlags() *memFlags { return &memFlags{flags: map[string]time.Duration{}} }

func (m *memFlags) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flags[name]
	return ok, nil
}

func (m *memFlags) Mark(_ context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.flags[name] = ttl
	return nil
}

func (m *memFlags) set(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[name] = time.Minute
}

type orderReq struct {
	UserID    int64
	ProgramID int64
}

var errBoom = fmt.Errorf("boom")
