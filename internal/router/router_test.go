package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/seat-ticketing/internal/handler"
	"github.com/iliyamo/seat-ticketing/internal/model"
)

func TestRoutes(t *testing.T) {
	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	RegisterRoutes(e, handler.NewHealth(nil))
	orders := handler.NewProgramOrderHandler(func(context.Context, *model.ReservationRequest) (string, error) {
		return "1", nil
	})
	RegisterOrders(e, orders, "secret", func(next echo.HandlerFunc) echo.HandlerFunc { return next })
	RegisterAdmin(e, handler.NewProgramAdminHandler(func(context.Context, int64) error { return nil }), "secret")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/programs/1/orders", strings.NewReader(`{}`))
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "orders need a token")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/programs/1/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "admin routes need a token")
}
