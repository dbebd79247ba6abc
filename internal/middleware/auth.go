package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/token"
)

// Route is one method + route template pair, e.g. GET /v1/projects/:id.
type Route struct {
	Method string
	Path   string
}

// RouteSet is the fixed table of routes that skip authentication. It is
// built once at startup and only read afterwards.
type RouteSet struct {
	routes map[Route]struct{}
}

func NewRouteSet(routes ...Route) RouteSet {
	s := RouteSet{routes: make(map[Route]struct{}, len(routes))}
	for _, r := range routes {
		s.routes[r] = struct{}{}
	}
	return s
}

// Contains reports whether method + path template is public. HEAD is
// treated like GET.
func (s RouteSet) Contains(method, path string) bool {
	if method == http.MethodHead {
		method = http.MethodGet
	}
	_, ok := s.routes[Route{Method: method, Path: path}]
	return ok
}

// Routes returns the entries in no particular order.
func (s RouteSet) Routes() []Route {
	out := make([]Route, 0, len(s.routes))
	for r := range s.routes {
		out = append(out, r)
	}
	return out
}

// GateRecorder observes gate outcomes (metrics).
type GateRecorder interface {
	GateDecision(outcome string)
}

// Gate outcomes. The rejection outcomes double as the "error" tag of the
// 401 body.
const (
	OutcomePublic         = "public"
	OutcomeVerified       = "verified"
	OutcomeMissingToken   = "missing_token"
	OutcomeInvalidFormat  = "invalid_token_format"
	OutcomeExpired        = "token_expired"
	OutcomeBadSignature   = "invalid_signature"
	OutcomeMalformedToken = "malformed_token"
)

// Authenticate is the authentication gate. It must run after routing
// (e.Use) so c.Path() holds the matched route template. Public routes and
// unmatched requests pass through untouched; every other request needs a
// valid bearer token, whose identity is bound for IdentityFrom. Rejected
// requests never reach the handler.
func Authenticate(engine *token.Engine, public RouteSet, rec GateRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" || public.Contains(c.Request().Method, path) {
				if rec != nil {
					rec.GateDecision(OutcomePublic)
				}
				return next(c)
			}

			id, err := verifyRequest(engine, c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				if rec != nil {
					rec.GateDecision(err.Tag)
				}
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="tasksphere"`)
				return err
			}
			if rec != nil {
				rec.GateDecision(OutcomeVerified)
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

func verifyRequest(engine *token.Engine, header string) (token.Identity, *apperr.Error) {
	raw, err := token.ParseBearer(header)
	switch {
	case errors.Is(err, token.ErrMissingToken):
		return token.Identity{}, apperr.Authentication(OutcomeMissingToken, "authentication token is required", err)
	case err != nil:
		return token.Identity{}, apperr.Authentication(OutcomeInvalidFormat, "authorization header must use the Bearer scheme", err)
	}

	id, err := engine.Verify(raw)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, token.ErrExpired):
		return token.Identity{}, apperr.Authentication(OutcomeExpired, "token has expired", err)
	case errors.Is(err, token.ErrInvalidSignature):
		return token.Identity{}, apperr.Authentication(OutcomeBadSignature, "token signature is invalid", err)
	default:
		return token.Identity{}, apperr.Authentication(OutcomeMalformedToken, "token is malformed", err)
	}
}
