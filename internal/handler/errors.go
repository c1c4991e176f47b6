package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/iliyamo/seat-ticketing/internal/errno"
)

// httpStatus maps an errno code to the response status.
func httpStatus(code errno.Code) int {
	switch code {
	case errno.InvalidRequest:
		return http.StatusBadRequest
	case errno.DuplicateRequest, errno.LockAcquisitionTimeout:
		return http.StatusConflict
	case errno.ProgramNotFound, errno.TicketCategoryNotFound, errno.SeatNotExist:
		return http.StatusNotFound
	case errno.InventorySeatNotAvailable, errno.InventoryInsufficient, errno.PriceMismatch, errno.OperationNotPermitted:
		return http.StatusUnprocessableEntity
	case errno.DownstreamSubmissionFailure:
		return http.StatusBadGateway
	case errno.InterruptedWait, errno.LockAcquisitionFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"code", "error"}. Unclassified errors are
// logged and hidden from the client.
func writeError(c echo.Context, err error) error {
	var e *errno.Error
	if !errors.As(err, &e) {
		logx.WithContext(c.Request().Context()).Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	status := httpStatus(e.Code)
	if status >= http.StatusInternalServerError {
		logx.WithContext(c.Request().Context()).Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, echo.Map{"code": e.Code, "error": e.Msg})
}
