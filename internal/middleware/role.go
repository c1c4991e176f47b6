package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RoleKey is the echo context key JWTAuth stores the token role under.
const RoleKey = "role"

// RoleAdmin may manage programs.
const RoleAdmin = "admin"

// RequireRole rejects with 403 any caller whose role is not one of roles.
// It assumes JWTAuth ran before it.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(RoleKey).(string)
			if _, ok := allowed[role]; !ok || role == "" {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
