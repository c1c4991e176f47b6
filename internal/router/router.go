// Package router registers the HTTP routes of the order API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-ticketing/internal/handler"
	"github.com/iliyamo/seat-ticketing/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, health *handler.Health) {
	e.GET("/healthz", health.Handle)
}

// RegisterOrders registers the order endpoints under /v1. Every route needs
// a valid access token, and order creation is throttled per user.
func RegisterOrders(e *echo.Echo, h *handler.ProgramOrderHandler, jwtSecret string, throttle echo.MiddlewareFunc) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.POST("/programs/:id/orders", h.Create, throttle)
}

// RegisterAdmin registers the operator endpoints under /v1/admin. They need
// an access token carrying the admin role.
func RegisterAdmin(e *echo.Echo, h *handler.ProgramAdminHandler, jwtSecret string) {
	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(jwtSecret), middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/programs/:id/refresh", h.Refresh)
}
