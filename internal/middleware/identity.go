package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tasksphere/internal/token"
)

// identityKey is the echo context key the gate stores the verified identity under.
const identityKey = "auth.identity"

// IdentityFrom returns the identity bound by Authenticate. ok is false on
// public routes and whenever the gate did not run.
func IdentityFrom(c echo.Context) (token.Identity, bool) {
	id, ok := c.Get(identityKey).(token.Identity)
	if !ok || id.UserID == 0 {
		return token.Identity{}, false
	}
	return id, true
}

// userKey identifies the caller in rate limit and cache keys: the user id
// when authenticated, "anon" otherwise.
func userKey(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
