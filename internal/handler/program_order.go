package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-ticketing/internal/middleware"
	"github.com/iliyamo/seat-ticketing/internal/model"
	"github.com/iliyamo/seat-ticketing/internal/service"
)

// ProgramOrderHandler exposes order creation. It assumes JWTAuth ran before
// it.
type ProgramOrderHandler struct {
	create service.OrderEntry
}

func NewProgramOrderHandler(create service.OrderEntry) *ProgramOrderHandler {
	if create == nil {
		panic("nil order entry passed to NewProgramOrderHandler")
	}
	return &ProgramOrderHandler{create: create}
}

// Create handles POST /v1/programs/:id/orders. The body carries either
// "seats" or "ticket_category_id" with "ticket_count", plus one
// "ticket_user_ids" entry per seat. It returns 201 with the order number.
func (h *ProgramOrderHandler) Create(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	programID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || programID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid program id"})
	}

	var req model.ReservationRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.ProgramID = programID
	req.UserID = userID
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "details": err})
	}

	orderNumber, err := h.create(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"order_number": orderNumber})
}
