package model

import "time"

// SeatSelection is one seat picked by the buyer. PriceCents is the price
// the client saw; it is checked against the catalog.
type SeatSelection struct {
	TicketCategoryID int64 `json:"ticket_category_id" validate:"required,gt=0"`
	RowCode          int   `json:"row_code" validate:"gt=0"`
	ColCode          int   `json:"col_code" validate:"gt=0"`
	PriceCents       int64 `json:"price_cents" validate:"gte=0"`
}

// ReservationRequest asks for seats of one program. Either Seats is set
// (manual choice) or TicketCategoryID and TicketCount are (auto assign).
type ReservationRequest struct {
	ProgramID        int64           `json:"program_id" validate:"required,gt=0"`
	UserID           int64           `json:"user_id" validate:"required,gt=0"`
	TicketUserIDs    []int64         `json:"ticket_user_ids" validate:"required,min=1,dive,gt=0"`
	Seats            []SeatSelection `json:"seats" validate:"omitempty,dive"`
	TicketCategoryID int64           `json:"ticket_category_id" validate:"gte=0"`
	TicketCount      int             `json:"ticket_count" validate:"gte=0"`
}

// Manual reports whether the buyer picked seats explicitly.
func (r *ReservationRequest) Manual() bool { return len(r.Seats) > 0 }

// CategoryIDs lists every ticket category the request touches, in request
// order and possibly repeated.
func (r *ReservationRequest) CategoryIDs() []int64 {
	if !r.Manual() {
		return []int64{r.TicketCategoryID}
	}
	ids := make([]int64, 0, len(r.Seats))
	for _, s := range r.Seats {
		ids = append(ids, s.TicketCategoryID)
	}
	return ids
}

// OrderCreateRequest is sent to the order service once seats are reserved.
// It is built once and never modified.
type OrderCreateRequest struct {
	OrderNumber             int64             `json:"orderNumber"`
	ProgramID               int64             `json:"programId"`
	ProgramItemPicture      string            `json:"programItemPicture"`
	UserID                  int64             `json:"userId"`
	ProgramTitle            string            `json:"programTitle"`
	ProgramPlace            string            `json:"programPlace"`
	ProgramShowTime         time.Time         `json:"programShowTime"`
	ProgramPermitChooseSeat bool              `json:"programPermitChooseSeat"`
	OrderPriceCents         int64             `json:"orderPrice"`
	CreateOrderTime         time.Time         `json:"createOrderTime"`
	TicketUsers             []OrderTicketUser `json:"orderTicketUserCreateDtoList"`
}

// OrderTicketUser binds one attendee to one seat of the order.
type OrderTicketUser struct {
	OrderNumber      int64     `json:"orderNumber"`
	ProgramID        int64     `json:"programId"`
	UserID           int64     `json:"userId"`
	TicketUserID     int64     `json:"ticketUserId"`
	SeatID           int64     `json:"seatId"`
	SeatInfo         string    `json:"seatInfo"`
	TicketCategoryID int64     `json:"ticketCategoryId"`
	OrderPriceCents  int64     `json:"orderPrice"`
	CreateOrderTime  time.Time `json:"createOrderTime"`
}

// OrderResult is the order service reply. Code 0 is success.
type OrderResult struct {
	Code        int    `json:"code"`
	Message     string `json:"message,omitempty"`
	OrderNumber string `json:"data"`
}

// DelayCancel is delivered after the payment window to cancel an unpaid
// order.
type DelayCancel struct {
	OrderNumber int64     `json:"orderNumber"`
	ProgramID   int64     `json:"programId"`
	CreatedAt   time.Time `json:"createdAt"`
}
