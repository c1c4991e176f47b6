package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-ticketing/internal/distlock"
	"github.com/iliyamo/seat-ticketing/internal/guard"
	"github.com/iliyamo/seat-ticketing/internal/ledger"
	"github.com/iliyamo/seat-ticketing/internal/locallock"
	"github.com/iliyamo/seat-ticketing/internal/lockkey"
	"github.com/iliyamo/seat-ticketing/internal/model"
	"github.com/iliyamo/seat-ticketing/internal/queue"
	"github.com/iliyamo/seat-ticketing/internal/repository"
)

const programID = 1001

var errBoom = errors.New("boom")

// memStore is an in-memory catalog serving both the program cache and the
// ledger read path.
type memStore struct {
	program    model.Program
	categories []model.TicketCategory
	seats      map[int64][]model.Seat
	programHit atomic.Int32
}

func (m *memStore) GetProgram(_ context.Context, id int64) (model.Program, error) {
	m.programHit.Add(1)
	if id != m.program.ID {
		return model.Program{}, repository.ErrNotFound
	}
	return m.program, nil
}

func (m *memStore) ListTicketCategories(_ context.Context, id int64) ([]model.TicketCategory, error) {
	if id != m.program.ID {
		return nil, nil
	}
	return m.categories, nil
}

func (m *memStore) ListSeats(_ context.Context, _ int64, categoryID int64) ([]model.Seat, error) {
	return m.seats[categoryID], nil
}

func row(categoryID int64, rowCode int, cols []int, price int64) []model.Seat {
	out := make([]model.Seat, len(cols))
	for i, c := range cols {
		out[i] = model.Seat{
			ID:               categoryID*100 + int64(c),
			ProgramID:        programID,
			TicketCategoryID: categoryID,
			RowCode:          rowCode,
			ColCode:          c,
			PriceCents:       price,
			SellStatus:       model.SellStatusNoSold,
		}
	}
	return out
}

// newStore: category 1 has three adjacent seats, category 2 two, category 3
// two seats with a gap between them.
func newStore() *memStore {
	return &memStore{
		program: model.Program{
			ID:               programID,
			Title:            "Night Concert",
			Place:            "Hall A",
			PermitChooseSeat: true,
			ShowTime:         time.Now().Add(24 * time.Hour),
		},
		categories: []model.TicketCategory{
			{ID: 1, ProgramID: programID, PriceCents: 5000, TotalNumber: 3, RemainNumber: 3},
			{ID: 2, ProgramID: programID, PriceCents: 8000, TotalNumber: 2, RemainNumber: 2},
			{ID: 3, ProgramID: programID, PriceCents: 3000, TotalNumber: 2, RemainNumber: 2},
		},
		seats: map[int64][]model.Seat{
			1: row(1, 1, []int{1, 2, 3}, 5000),
			2: row(2, 2, []int{1, 2}, 8000),
			3: row(3, 3, []int{1, 3}, 3000),
		},
	}
}

type fakeSubmitter struct {
	mu     sync.Mutex
	err    error
	orders []*model.OrderCreateRequest
}

func (f *fakeSubmitter) Submit(_ context.Context, req *model.OrderCreateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if f.err != nil {
		return "", f.err
	}
	return strconv.FormatInt(req.OrderNumber, 10), nil
}

type scheduled struct {
	msg   model.DelayCancel
	delay time.Duration
}

type fakeScheduler struct {
	mu   sync.Mutex
	err  error
	sent []scheduled
}

func (f *fakeScheduler) Schedule(_ context.Context, msg model.DelayCancel, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, scheduled{msg: msg, delay: delay})
	return f.err
}

// failingRelease makes compensation fail.
type failingRelease struct {
	Inventory
}

func (failingRelease) Release(context.Context, int64, []model.Seat) ([]model.Seat, error) {
	return nil, errBoom
}

// recordingLocker records the name of every lock attempt.
type recordingLocker struct {
	distlock.Locker
	mu    sync.Mutex
	names []string
}

func (r *recordingLocker) TryLock(ctx context.Context, spec distlock.Spec) (*distlock.Handle, error) {
	r.mu.Lock()
	r.names = append(r.names, spec.Name)
	r.mu.Unlock()
	return r.Locker.TryLock(ctx, spec)
}

type fakePublisher struct {
	err     error
	respond func(onSuccess func(queue.Ack), onFailure func(error))
}

func (f *fakePublisher) Publish(_ context.Context, _ string, _ []byte, onSuccess func(queue.Ack), onFailure func(error)) error {
	if f.err != nil {
		return f.err
	}
	if f.respond != nil {
		go f.respond(onSuccess, onFailure)
	}
	return nil
}

type fakeOrderClient struct {
	res model.OrderResult
	err error
}

func (f fakeOrderClient) Create(context.Context, model.OrderCreateRequest) (model.OrderResult, error) {
	return f.res, f.err
}

type harness struct {
	mr        *miniredis.Miniredis
	store     *memStore
	ledger    *ledger.Ledger
	locker    *recordingLocker
	deps      guard.Deps
	submitter *fakeSubmitter
	cancels   *fakeScheduler
	svc       *ProgramOrderService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	namer := lockkey.Namer{Prefix: "test"}
	redisLocker := distlock.NewRedisLocker(rdb, distlock.WithPollInterval(time.Millisecond))
	store := newStore()
	l := ledger.New(rdb, redisLocker, store, namer, ledger.WithLoadWait(5*time.Second))

	catalog, err := NewCachedCatalog(store, time.Minute, 100)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		mr:        mr,
		store:     store,
		ledger:    l,
		locker:    &recordingLocker{Locker: redisLocker},
		submitter: &fakeSubmitter{},
		cancels:   &fakeScheduler{},
	}
	h.deps = guard.Deps{
		Locker: h.locker,
		Local:  locallock.NewRegistry(),
		Flags:  guard.NewRedisFlagStore(rdb, "test:flag:"),
		Namer:  namer,
	}
	h.svc = NewProgramOrderService(catalog, l, h.submitter, h.cancels, node, Options{CancelDelay: 15 * time.Minute})
	return h
}

func (h *harness) entry(t *testing.T) OrderEntry {
	t.Helper()
	multi := guard.NewMultiLock(h.deps.Local, h.deps.Locker, 5*time.Second, time.Minute)
	e, err := NewOrderEntry(h.deps, multi, h.svc, EntryOptions{RepeatHold: time.Minute})
	require.NoError(t, err)
	return e
}

// warm loads every category into the cache.
func (h *harness) warm(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, c := range h.store.categories {
		_, err := h.ledger.Seats(ctx, programID, c.ID, time.Hour)
		require.NoError(t, err)
		_, err = h.ledger.RemainNumber(ctx, programID, c.ID, time.Hour)
		require.NoError(t, err)
	}
}

// state dumps every inventory hash of the program.
func (h *harness) state() map[string]map[string]string {
	keys := h.ledger.Keys()
	out := map[string]map[string]string{}
	for _, c := range h.store.categories {
		names := []string{keys.RemainNumber(programID, c.ID)}
		for _, st := range []model.SellStatus{model.SellStatusNoSold, model.SellStatusLock, model.SellStatusSold} {
			names = append(names, keys.SeatBucket(st, programID, c.ID))
		}
		for _, k := range names {
			fields := map[string]string{}
			if h.mr.Exists(k) {
				ks, _ := h.mr.HKeys(k)
				for _, f := range ks {
					fields[f] = h.mr.HGet(k, f)
				}
			}
			out[k] = fields
		}
	}
	return out
}

func (h *harness) remain(categoryID int64) string {
	return h.mr.HGet(h.ledger.Keys().RemainNumber(programID, categoryID), strconv.FormatInt(categoryID, 10))
}
