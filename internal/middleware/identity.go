package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles carried in the token's role claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Identity is the caller as seen by JWTAuth.
type Identity struct {
	UserID uint64
	Role   string
	Email  string
}

// IsAdmin reports whether the caller is staff.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CurrentIdentity reads the claims JWTAuth stored on c.  ok is false when
// the request is unauthenticated or the subject is not a positive integer.
// The subject may arrive as a JSON number or a string.
func CurrentIdentity(c echo.Context) (Identity, bool) {
	var id Identity
	switch v := c.Get(KeyUserID).(type) {
	case float64:
		if v < 1 || v != float64(uint64(v)) {
			return id, false
		}
		id.UserID = uint64(v)
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			return id, false
		}
		id.UserID = n
	case uint64:
		id.UserID = v
	default:
		return id, false
	}
	id.Role, _ = c.Get(KeyRole).(string)
	id.Role = strings.ToUpper(id.Role)
	if id.Role == "" {
		id.Role = RoleCustomer
	}
	id.Email, _ = c.Get(KeyEmail).(string)
	return id, true
}

// subject is the rate-limit and cache identity of the caller.
func subject(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
