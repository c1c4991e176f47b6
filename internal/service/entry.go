package service

import (
	"strconv"
	"time"

	"github.com/iliyamo/seat-ticketing/internal/guard"
	"github.com/iliyamo/seat-ticketing/internal/model"
)

// Operation names of the order entry. They end up in lock and flag names.
const (
	OpCreateProgramOrder = "create_program_order"
	OpTicketCategory     = "program_order_ticket_category"
)

// OrderEntry is the guarded order creation call exposed to transports.
type OrderEntry guard.Func[*model.ReservationRequest, string]

// EntryOptions configure NewOrderEntry.
type EntryOptions struct {
	// RepeatHold rejects a repeat of a completed request by the same user
	// for the same program for this long.
	RepeatHold time.Duration
	// RepeatLease bounds the idempotency lock; zero keeps it renewed.
	RepeatLease time.Duration
}

// NewOrderEntry composes svc.Create behind the per-user idempotency guard
// and the ordered per-category locks of the program.
func NewOrderEntry(d guard.Deps, multi *guard.MultiLock, svc *ProgramOrderService, opts EntryOptions) (OrderEntry, error) {
	repeat, err := guard.RepeatLimit[*model.ReservationRequest, string](d, guard.RepeatLimitOptions[*model.ReservationRequest]{
		Operation: OpCreateProgramOrder,
		Keys:      []string{"#req.UserID", "#req.ProgramID"},
		Hold:      opts.RepeatHold,
		LeaseTime: opts.RepeatLease,
	})
	if err != nil {
		return nil, err
	}

	categories := guard.OrderedLock[*model.ReservationRequest, string](multi, func(req *model.ReservationRequest) []string {
		return CategoryLockNames(d, req)
	})

	return OrderEntry(guard.Chain[*model.ReservationRequest, string](svc.Create, repeat, categories)), nil
}

// CategoryLockNames lists the lock names of every ticket category req
// touches, in acquisition order.
func CategoryLockNames(d guard.Deps, req *model.ReservationRequest) []string {
	return guard.LockNames(d.Namer, OpTicketCategory, req.CategoryIDs(), strconv.FormatInt(req.ProgramID, 10))
}
