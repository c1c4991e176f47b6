// Package ledger keeps the cache-resident inventory of a program: the
// remaining count of each ticket category and its seats bucketed by sell
// state. Counters and buckets change only through Apply.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
	"github.com/iliyamo/seat-ticketing/internal/model"
)

// Lock operations guarding cache population.
const (
	opInventory     = "inventory"
	opLoadInventory = "get_inventory"
)

// Catalog is the authoritative store the cache is loaded from.
type Catalog interface {
	ListTicketCategories(ctx context.Context, programID int64) ([]model.TicketCategory, error)
	ListSeats(ctx context.Context, programID, categoryID int64) ([]model.Seat, error)
}

type Option func(*Ledger)

// WithKeyPrefix prefixes every cache key.
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) { l.keys.Prefix = prefix }
}

// WithLoadWait bounds how long a cold read waits for the population locks.
// A negative value waits until the context is done.
func WithLoadWait(d time.Duration) Option {
	return func(l *Ledger) { l.loadWait = d }
}

type Ledger struct {
	rdb      redis.Cmdable
	locker   distlock.Locker
	catalog  Catalog
	namer    lockkey.Namer
	keys     Keys
	loadWait time.Duration
}

func New(rdb redis.Cmdable, locker distlock.Locker, catalog Catalog, namer lockkey.Namer, opts ...Option) *Ledger {
	l := &Ledger{
		rdb:      rdb,
		locker:   locker,
		catalog:  catalog,
		namer:    namer,
		loadWait: -1,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Keys exposes the key layout, mostly for tests and operators.
func (l *Ledger) Keys() Keys { return l.keys }

// RemainNumber returns the cached remaining count of a category, loading
// the category from the catalog on a miss. A positive ttl bounds the cached
// entries.
func (l *Ledger) RemainNumber(ctx context.Context, programID, categoryID int64, ttl time.Duration) (int64, error) {
	key := l.keys.RemainNumber(programID, categoryID)
	field := strconv.FormatInt(categoryID, 10)

	if n, ok, err := l.cachedRemain(ctx, key, field); err != nil || ok {
		return n, err
	}

	var remain int64
	err := l.underLoadLocks(ctx, programID, categoryID, func(ctx context.Context) error {
		n, ok, err := l.cachedRemain(ctx, key, field)
		if err != nil || ok {
			remain = n
			return err
		}
		remain, _, err = l.load(ctx, programID, categoryID, ttl)
		return err
	})
	return remain, err
}

func (l *Ledger) cachedRemain(ctx context.Context, key, field string) (int64, bool, error) {
	n, err := l.rdb.HGet(ctx, key, field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Seats returns every cached seat of a category in any sell state, loading
// the category from the catalog on a miss. A positive ttl bounds the cached
// entries.
func (l *Ledger) Seats(ctx context.Context, programID, categoryID int64, ttl time.Duration) ([]model.Seat, error) {
	if seats, ok, err := l.cachedSeats(ctx, programID, categoryID); err != nil || ok {
		return seats, err
	}

	var seats []model.Seat
	err := l.underLoadLocks(ctx, programID, categoryID, func(ctx context.Context) error {
		cached, ok, err := l.cachedSeats(ctx, programID, categoryID)
		if err != nil || ok {
			seats = cached
			return err
		}
		_, seats, err = l.load(ctx, programID, categoryID, ttl)
		return err
	})
	return seats, err
}

// cachedSeats reads the three buckets in one transaction. The category
// counter marks the buckets as loaded: an empty bucket is only meaningful
// while the counter exists.
func (l *Ledger) cachedSeats(ctx context.Context, programID, categoryID int64) ([]model.Seat, bool, error) {
	pipe := l.rdb.TxPipeline()
	loaded := pipe.HExists(ctx, l.keys.RemainNumber(programID, categoryID), strconv.FormatInt(categoryID, 10))
	cmds := make([]*redis.MapStringStringCmd, 0, 3)
	for _, key := range l.keys.seatBuckets(programID, categoryID) {
		cmds = append(cmds, pipe.HGetAll(ctx, key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	if !loaded.Val() {
		return nil, false, nil
	}
	var seats []model.Seat
	for _, cmd := range cmds {
		for id, raw := range cmd.Val() {
			var s model.Seat
			if err := json.Unmarshal([]byte(raw), &s); err != nil {
				return nil, false, fmt.Errorf("ledger: decode cached seat %s: %w", id, err)
			}
			seats = append(seats, s)
		}
	}
	return seats, true, nil
}

// load replaces whatever is cached for a category with the catalog's view.
// The counter and the buckets are written in one transaction under one ttl
// so they expire together.
func (l *Ledger) load(ctx context.Context, programID, categoryID int64, ttl time.Duration) (int64, []model.Seat, error) {
	categories, err := l.catalog.ListTicketCategories(ctx, programID)
	if err != nil {
		return 0, nil, err
	}
	idx := slices.IndexFunc(categories, func(c model.TicketCategory) bool { return c.ID == categoryID })
	if idx < 0 {
		return 0, nil, errno.ErrTicketCategoryNotFound
	}
	remain := categories[idx].RemainNumber

	seats, err := l.catalog.ListSeats(ctx, programID, categoryID)
	if err != nil {
		return 0, nil, err
	}
	buckets := make(map[string][]any)
	for _, s := range seats {
		payload, err := json.Marshal(s)
		if err != nil {
			return 0, nil, err
		}
		key := l.keys.SeatBucket(s.SellStatus, programID, categoryID)
		buckets[key] = append(buckets[key], strconv.FormatInt(s.ID, 10), string(payload))
	}

	counterKey := l.keys.RemainNumber(programID, categoryID)
	pipe := l.rdb.TxPipeline()
	pipe.Del(ctx, append(l.keys.seatBuckets(programID, categoryID), counterKey)...)
	pipe.HSet(ctx, counterKey, strconv.FormatInt(categoryID, 10), remain)
	if ttl > 0 {
		pipe.Expire(ctx, counterKey, ttl)
	}
	for key, fields := range buckets {
		pipe.HSet(ctx, key, fields...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, nil, err
	}
	return remain, seats, nil
}

// underLoadLocks holds the shared population lock of a key, then the
// exclusive loader lock, so cache hits never wait on each other while at
// most one caller loads from the catalog.
func (l *Ledger) underLoadLocks(ctx context.Context, programID, categoryID int64, fn func(ctx context.Context) error) error {
	ctx = distlock.EnsureHolder(ctx)
	ids := []string{strconv.FormatInt(programID, 10), strconv.FormatInt(categoryID, 10)}

	rh, err := l.locker.TryLock(ctx, distlock.Spec{
		Type:     distlock.Read,
		Name:     l.namer.Name(lockkey.TagServiceLock, opInventory, ids...),
		WaitTime: l.loadWait,
	})
	if err != nil {
		return lockError(err)
	}
	defer l.release(ctx, rh)

	h, err := l.locker.TryLock(ctx, distlock.Spec{
		Type:     distlock.Reentrant,
		Name:     l.namer.Name(lockkey.TagServiceLock, opLoadInventory, ids...),
		WaitTime: l.loadWait,
	})
	if err != nil {
		return lockError(err)
	}
	defer l.release(ctx, h)

	return fn(ctx)
}

// Invalidate drops the cached inventory of a category. It takes the write
// side of the population lock so no load is in flight while it runs.
func (l *Ledger) Invalidate(ctx context.Context, programID, categoryID int64) error {
	ctx = distlock.EnsureHolder(ctx)
	ids := []string{strconv.FormatInt(programID, 10), strconv.FormatInt(categoryID, 10)}
	h, err := l.locker.TryLock(ctx, distlock.Spec{
		Type:     distlock.Write,
		Name:     l.namer.Name(lockkey.TagServiceLock, opInventory, ids...),
		WaitTime: l.loadWait,
	})
	if err != nil {
		return lockError(err)
	}
	defer l.release(ctx, h)
	keys := append(l.keys.seatBuckets(programID, categoryID), l.keys.RemainNumber(programID, categoryID))
	return l.rdb.Del(ctx, keys...).Err()
}

// Reserve moves seats from unsold to locked and decrements the counters of
// their categories. It fails without changing anything when a counter is
// missing or short, or a seat is no longer unsold.
func (l *Ledger) Reserve(ctx context.Context, programID int64, seats []model.Seat) ([]model.Seat, error) {
	if len(seats) == 0 {
		return nil, errno.ErrInvalidRequest.WithMsg("no seats to reserve")
	}
	m, err := l.keys.move(OpReserve, programID, seats, model.SellStatusNoSold, model.SellStatusLock, -1)
	if err != nil {
		return nil, err
	}
	return l.Apply(ctx, m)
}

// Release is the inverse of Reserve: locked seats go back to unsold and
// the counters are restored. A seat that is sold, by its own status or in
// the cache, cannot be released and fails the whole call.
func (l *Ledger) Release(ctx context.Context, programID int64, seats []model.Seat) ([]model.Seat, error) {
	if len(seats) == 0 {
		return nil, nil
	}
	for _, s := range seats {
		if s.SellStatus == model.SellStatusSold {
			return nil, errno.ErrOperationNotPermitted.WithMsg("seat %d is sold", s.ID)
		}
	}
	m, err := l.keys.move(OpRelease, programID, seats, model.SellStatusLock, model.SellStatusNoSold, 1, model.SellStatusSold)
	if err != nil {
		return nil, err
	}
	return l.Apply(ctx, m)
}

func (l *Ledger) release(ctx context.Context, h *distlock.Handle) {
	if err := h.Release(context.WithoutCancel(ctx)); err != nil {
		logx.WithContext(ctx).Errorf("ledger: release %s lock %s: %v", h.Type(), h.Name(), err)
	}
}

func lockError(err error) error {
	if errors.Is(err, distlock.ErrTimeout) {
		return errno.ErrLockAcquisitionTimeout.Wrap(err)
	}
	return errno.ErrLockAcquisitionFailure.Wrap(err)
}
