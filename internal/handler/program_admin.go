package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ProgramRefresh drops the cached state of a program.
type ProgramRefresh func(ctx context.Context, programID int64) error

// ProgramAdminHandler exposes cache maintenance to operators.
type ProgramAdminHandler struct {
	refresh ProgramRefresh
}

func NewProgramAdminHandler(refresh ProgramRefresh) *ProgramAdminHandler {
	if refresh == nil {
		panic("nil refresh passed to NewProgramAdminHandler")
	}
	return &ProgramAdminHandler{refresh: refresh}
}

// Refresh handles POST /v1/admin/programs/:id/refresh and answers 204 once
// the program and its inventory are gone from the caches.
func (h *ProgramAdminHandler) Refresh(c echo.Context) error {
	programID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || programID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid program id"})
	}
	if err := h.refresh(c.Request().Context(), programID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
