package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/seat-ticketing/internal/model"
)

// CatalogRepo reads programs, ticket categories and seats. Every method is
// side-effect free and safe to retry.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo constructs a CatalogRepo given a DB handle.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// GetProgram loads a program together with its show time. A program without
// a show time row is treated as missing since it cannot be sold.
func (r *CatalogRepo) GetProgram(ctx context.Context, programID int64) (model.Program, error) {
	const q = `SELECT p.id, p.title, p.place, p.item_picture, p.permit_choose_seat, st.show_time
FROM program p
JOIN program_show_time st ON st.program_id = p.id
WHERE p.id = ?
LIMIT 1`
	var p model.Program
	err := r.db.QueryRowContext(ctx, q, programID).Scan(
		&p.ID, &p.Title, &p.Place, &p.ItemPicture, &p.PermitChooseSeat, &p.ShowTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Program{}, ErrNotFound
	}
	if err != nil {
		return model.Program{}, err
	}
	return p, nil
}

// ListTicketCategories returns the ticket categories of a program ordered by
// id. Prices are stored in cents.
func (r *CatalogRepo) ListTicketCategories(ctx context.Context, programID int64) ([]model.TicketCategory, error) {
	const q = `SELECT id, program_id, introduce, price, total_number, remain_number
FROM ticket_category
WHERE program_id = ?
ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, programID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TicketCategory
	for rows.Next() {
		var c model.TicketCategory
		if err := rows.Scan(&c.ID, &c.ProgramID, &c.Introduce, &c.PriceCents, &c.TotalNumber, &c.RemainNumber); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSeats returns every seat of one category of a program in any sell
// state, ordered by row then column.
func (r *CatalogRepo) ListSeats(ctx context.Context, programID, categoryID int64) ([]model.Seat, error) {
	const q = `SELECT id, program_id, ticket_category_id, row_code, col_code, seat_type, price, sell_status
FROM seat
WHERE program_id = ? AND ticket_category_id = ?
ORDER BY row_code, col_code`
	rows, err := r.db.QueryContext(ctx, q, programID, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.ProgramID, &s.TicketCategoryID, &s.RowCode, &s.ColCode,
			&s.SeatType, &s.PriceCents, &s.SellStatus); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
