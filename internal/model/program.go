package model

import "time"

// Program is a show on sale. Only the fields the order path reads are
// mapped.
type Program struct {
	ID               int64     `json:"id"`               // program.id
	Title            string    `json:"title"`            // program.title
	Place            string    `json:"place"`            // program.place
	ItemPicture      string    `json:"itemPicture"`      // program.item_picture
	PermitChooseSeat bool      `json:"permitChooseSeat"` // program.permit_choose_seat
	ShowTime         time.Time `json:"showTime"`         // program_show_time.show_time
}

// TicketCategory is a price tier of a program.
type TicketCategory struct {
	ID           int64  `json:"id"`           // ticket_category.id
	ProgramID    int64  `json:"programId"`    // ticket_category.program_id
	Introduce    string `json:"introduce"`    // ticket_category.introduce
	PriceCents   int64  `json:"priceCents"`   // ticket_category.price
	TotalNumber  int64  `json:"totalNumber"`  // ticket_category.total_number
	RemainNumber int64  `json:"remainNumber"` // ticket_category.remain_number
}
