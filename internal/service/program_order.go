// Package service implements the program order use case: validate the
// requested seats against the cached inventory, reserve them atomically,
// submit the order downstream and compensate the reservation on failure.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/seat-ticketing/internal/errno"
	"github.com/iliyamo/seat-ticketing/internal/model"
	"github.com/iliyamo/seat-ticketing/internal/seatmatch"
)

// Catalog serves program metadata from a local cache.
type Catalog interface {
	Program(ctx context.Context, programID int64) (model.Program, error)
	TicketCategories(ctx context.Context, programID int64) ([]model.TicketCategory, error)
}

// Inventory is the cache-resident seat and counter ledger.
type Inventory interface {
	RemainNumber(ctx context.Context, programID, categoryID int64, ttl time.Duration) (int64, error)
	Seats(ctx context.Context, programID, categoryID int64, ttl time.Duration) ([]model.Seat, error)
	Reserve(ctx context.Context, programID int64, seats []model.Seat) ([]model.Seat, error)
	Release(ctx context.Context, programID int64, seats []model.Seat) ([]model.Seat, error)
}

// CancelScheduler delivers a cancel message for an order after delay.
type CancelScheduler interface {
	Schedule(ctx context.Context, msg model.DelayCancel, delay time.Duration) error
}

// Options tune ProgramOrderService.
type Options struct {
	// CancelDelay is the payment window after which an unpaid order is
	// cancelled.
	CancelDelay time.Duration
	// MinCacheTTL bounds inventory caching for programs that have already
	// started.
	MinCacheTTL time.Duration
}

type ProgramOrderService struct {
	catalog   Catalog
	inventory Inventory
	submitter Submitter
	cancels   CancelScheduler
	ids       *snowflake.Node
	opts      Options
	now       func() time.Time
}

func NewProgramOrderService(catalog Catalog, inventory Inventory, submitter Submitter, cancels CancelScheduler, ids *snowflake.Node, opts Options) *ProgramOrderService {
	if opts.MinCacheTTL <= 0 {
		opts.MinCacheTTL = time.Minute
	}
	return &ProgramOrderService{
		catalog:   catalog,
		inventory: inventory,
		submitter: submitter,
		cancels:   cancels,
		ids:       ids,
		opts:      opts,
		now:       time.Now,
	}
}

// categorySnapshot is what the cache held for one category when the
// request was validated.
type categorySnapshot struct {
	remain int64
	seats  []model.Seat
	unsold []model.Seat
}

// Create reserves the requested seats and submits the order. It returns
// the order number.
func (s *ProgramOrderService) Create(ctx context.Context, req *model.ReservationRequest) (string, error) {
	if err := checkForm(req); err != nil {
		return "", err
	}

	program, err := s.catalog.Program(ctx, req.ProgramID)
	if err != nil {
		return "", err
	}
	categories, err := s.requestedCategories(ctx, req)
	if err != nil {
		return "", err
	}
	snapshots, err := s.snapshot(ctx, program, categories)
	if err != nil {
		return "", err
	}

	var purchase []model.Seat
	if req.Manual() {
		purchase, err = pickManual(req, snapshots)
	} else {
		purchase, err = pickAuto(req, snapshots[req.TicketCategoryID])
	}
	if err != nil {
		return "", err
	}

	reserved, err := s.inventory.Reserve(ctx, req.ProgramID, purchase)
	if err != nil {
		return "", err
	}

	order := s.buildOrder(req, program, purchase)
	orderNumber, err := s.submitter.Submit(ctx, order)
	if err != nil {
		s.compensate(ctx, order, reserved)
		return "", err
	}

	msg := model.DelayCancel{OrderNumber: order.OrderNumber, ProgramID: order.ProgramID, CreatedAt: order.CreateOrderTime}
	if err := s.cancels.Schedule(ctx, msg, s.opts.CancelDelay); err != nil {
		logx.WithContext(ctx).Errorw("schedule order cancellation failed",
			logx.Field("orderNumber", order.OrderNumber),
			logx.Field("err", err.Error()))
	}
	return orderNumber, nil
}

func checkForm(req *model.ReservationRequest) error {
	auto := req.TicketCategoryID > 0 || req.TicketCount > 0
	switch {
	case req.Manual() && auto:
		return errno.ErrInvalidRequest.WithMsg("choose seats or a ticket category and count, not both")
	case !req.Manual() && (req.TicketCategoryID <= 0 || req.TicketCount <= 0):
		return errno.ErrInvalidRequest.WithMsg("seats or a ticket category and count are required")
	}
	want := req.TicketCount
	if req.Manual() {
		want = len(req.Seats)
	}
	if len(req.TicketUserIDs) != want {
		return errno.ErrInvalidRequest.WithMsg("%d ticket users for %d seats", len(req.TicketUserIDs), want)
	}
	return nil
}

// requestedCategories resolves every category the request names against the
// catalog.
func (s *ProgramOrderService) requestedCategories(ctx context.Context, req *model.ReservationRequest) ([]model.TicketCategory, error) {
	all, err := s.catalog.TicketCategories(ctx, req.ProgramID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.TicketCategory, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	var out []model.TicketCategory
	seen := make(map[int64]bool)
	for _, id := range req.CategoryIDs() {
		if seen[id] {
			continue
		}
		c, ok := byID[id]
		if !ok {
			return nil, errno.ErrTicketCategoryNotFound.WithMsg("ticket category %d not found", id)
		}
		seen[id] = true
		out = append(out, c)
	}
	return out, nil
}

// snapshot reads the cached inventory of each category, loading cold
// categories concurrently. Entries live until the show starts.
func (s *ProgramOrderService) snapshot(ctx context.Context, program model.Program, categories []model.TicketCategory) (map[int64]categorySnapshot, error) {
	ttl := program.ShowTime.Sub(s.now())
	if ttl < s.opts.MinCacheTTL {
		ttl = s.opts.MinCacheTTL
	}

	var mu sync.Mutex
	out := make(map[int64]categorySnapshot, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range categories {
		c := c
		g.Go(func() error {
			seats, err := s.inventory.Seats(gctx, program.ID, c.ID, ttl)
			if err != nil {
				return err
			}
			remain, err := s.inventory.RemainNumber(gctx, program.ID, c.ID, ttl)
			if err != nil {
				return err
			}
			snap := categorySnapshot{remain: remain, seats: seats}
			for _, seat := range seats {
				if seat.SellStatus == model.SellStatusNoSold {
					snap.unsold = append(snap.unsold, seat)
				}
			}
			mu.Lock()
			out[c.ID] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// pickManual matches the chosen seats against the snapshot and checks the
// declared price never exceeds the catalog price. A position outside the
// seat map does not exist; one held by another order is not available.
func pickManual(req *model.ReservationRequest, snapshots map[int64]categorySnapshot) ([]model.Seat, error) {
	counts := make(map[int64]int64)
	for _, sel := range req.Seats {
		counts[sel.TicketCategoryID]++
	}
	for id, n := range counts {
		if n > snapshots[id].remain {
			return nil, errno.ErrInventoryInsufficient.WithMsg("ticket category %d has %d left, %d requested", id, snapshots[id].remain, n)
		}
	}

	var declared, actual int64
	purchase := make([]model.Seat, 0, len(req.Seats))
	for _, sel := range req.Seats {
		seat, ok := findSeat(snapshots[sel.TicketCategoryID].seats, sel.RowCode, sel.ColCode)
		if !ok {
			return nil, errno.ErrSeatNotExist.WithMsg("seat %s does not exist", model.Position(sel.RowCode, sel.ColCode))
		}
		if seat.SellStatus != model.SellStatusNoSold {
			return nil, errno.ErrInventorySeatNotAvailable.WithMsg("seat %s is not available", model.Position(sel.RowCode, sel.ColCode))
		}
		purchase = append(purchase, seat)
		declared += sel.PriceCents
		actual += seat.PriceCents
	}
	if declared > actual {
		return nil, errno.ErrPriceMismatch.WithMsg("declared %d exceeds catalog price %d", declared, actual)
	}
	return purchase, nil
}

func findSeat(seats []model.Seat, row, col int) (model.Seat, bool) {
	for _, s := range seats {
		if s.RowCode == row && s.ColCode == col {
			return s, true
		}
	}
	return model.Seat{}, false
}

// pickAuto assigns adjacent seats of one category.
func pickAuto(req *model.ReservationRequest, snap categorySnapshot) ([]model.Seat, error) {
	count := int64(req.TicketCount)
	if count > snap.remain {
		return nil, errno.ErrInventoryInsufficient.WithMsg("ticket category %d has %d left, %d requested", req.TicketCategoryID, snap.remain, count)
	}
	seats := seatmatch.FindAdjacent(snap.unsold, req.TicketCount)
	if len(seats) < req.TicketCount {
		return nil, errno.ErrInventorySeatNotAvailable.WithMsg("no %d adjacent seats available", req.TicketCount)
	}
	return seats, nil
}

func (s *ProgramOrderService) buildOrder(req *model.ReservationRequest, program model.Program, purchase []model.Seat) *model.OrderCreateRequest {
	now := s.now()
	number := s.ids.Generate().Int64()
	order := &model.OrderCreateRequest{
		OrderNumber:             number,
		ProgramID:               program.ID,
		ProgramItemPicture:      program.ItemPicture,
		UserID:                  req.UserID,
		ProgramTitle:            program.Title,
		ProgramPlace:            program.Place,
		ProgramShowTime:         program.ShowTime,
		ProgramPermitChooseSeat: program.PermitChooseSeat,
		CreateOrderTime:         now,
		TicketUsers:             make([]model.OrderTicketUser, 0, len(purchase)),
	}
	for i, seat := range purchase {
		order.OrderPriceCents += seat.PriceCents
		order.TicketUsers = append(order.TicketUsers, model.OrderTicketUser{
			OrderNumber:      number,
			ProgramID:        program.ID,
			UserID:           req.UserID,
			TicketUserID:     req.TicketUserIDs[i],
			SeatID:           seat.ID,
			SeatInfo:         seat.Position(),
			TicketCategoryID: seat.TicketCategoryID,
			OrderPriceCents:  seat.PriceCents,
			CreateOrderTime:  now,
		})
	}
	return order
}

// compensate returns reserved seats to sale. A failure leaves the cache
// out of step with the order service and needs an operator.
func (s *ProgramOrderService) compensate(ctx context.Context, order *model.OrderCreateRequest, reserved []model.Seat) {
	if _, err := s.inventory.Release(context.WithoutCancel(ctx), order.ProgramID, reserved); err != nil {
		payload, _ := json.Marshal(order)
		logx.WithContext(ctx).Errorw("order compensation failed, manual reconciliation required",
			logx.Field("orderNumber", order.OrderNumber),
			logx.Field("order", string(payload)),
			logx.Field("err", err.Error()))
	}
}
