package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserIDKey is the echo context key JWTAuth stores the caller's id under.
const UserIDKey = "user_id"

// UserID returns the authenticated caller's id.
func UserID(c echo.Context) (int64, bool) {
	switch v := c.Get(UserIDKey).(type) {
	case int64:
		return v, v > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}
