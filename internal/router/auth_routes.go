package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tasksphere/internal/handler"
)

// RegisterAuth registers account and credential routes under /v1/auth.
// signup, login, forgot and reset are public; me needs a token. The limiter
// is attached per route: group-level middleware would also claim unmatched
// paths under the prefix.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	mw := use(limiter)
	g.POST("/signup", a.Signup, mw...)
	g.POST("/login", a.Login, mw...)
	g.POST("/forgot", a.Forgot, mw...)
	g.POST("/reset", a.Reset, mw...)
	g.GET("/me", a.Me)
}

// RegisterUsers registers the user lookup.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/users/search", u.Search, use(cache)...)
}
