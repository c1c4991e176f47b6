package model

import "strconv"

// SellStatus is the lifecycle state of a seat:
// NO_SOLD -> LOCK on reservation, LOCK -> SOLD on payment and
// LOCK -> NO_SOLD on cancellation or compensation.
type SellStatus int

const (
	SellStatusNoSold SellStatus = 1
	SellStatusLock   SellStatus = 2
	SellStatusSold   SellStatus = 3
)

func (s SellStatus) String() string {
	switch s {
	case SellStatusNoSold:
		return "NO_SOLD"
	case SellStatusLock:
		return "LOCK"
	case SellStatusSold:
		return "SOLD"
	default:
		return "UNKNOWN"
	}
}

// Seat is a sellable seat of one program. Cached copies are stored as JSON
// in the inventory buckets, so the json tags are part of the cache format.
type Seat struct {
	ID               int64      `json:"id"`               // seat.id
	ProgramID        int64      `json:"programId"`        // seat.program_id
	TicketCategoryID int64      `json:"ticketCategoryId"` // seat.ticket_category_id
	RowCode          int        `json:"rowCode"`          // seat.row_code
	ColCode          int        `json:"colCode"`          // seat.col_code
	SeatType         int        `json:"seatType"`         // seat.seat_type
	PriceCents       int64      `json:"priceCents"`       // seat.price
	SellStatus       SellStatus `json:"sellStatus"`       // seat.sell_status
}

// Position is the "row-col" label used to match a requested seat against
// the catalog.
func (s Seat) Position() string {
	return Position(s.RowCode, s.ColCode)
}

func Position(row, col int) string {
	return strconv.Itoa(row) + "-" + strconv.Itoa(col)
}
