// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/handler"
	"github.com/iliyamo/tasksphere/internal/middleware"
	"github.com/iliyamo/tasksphere/internal/token"
)

// PublicRoutes is the complete list of routes reachable without a token.
// Every other registered route goes through the authentication gate.
var PublicRoutes = middleware.NewRouteSet(
	middleware.Route{Method: http.MethodPost, Path: "/v1/auth/signup"},
	middleware.Route{Method: http.MethodPost, Path: "/v1/auth/login"},
	middleware.Route{Method: http.MethodPost, Path: "/v1/auth/forgot"},
	middleware.Route{Method: http.MethodPost, Path: "/v1/auth/reset"},
	middleware.Route{Method: http.MethodGet, Path: "/healthz"},
	middleware.Route{Method: http.MethodGet, Path: "/metrics"},
	middleware.Route{Method: http.MethodGet, Path: "/"},
	middleware.Route{Method: http.MethodGet, Path: "/home"},
	middleware.Route{Method: http.MethodGet, Path: "/docs"},
	middleware.Route{Method: http.MethodGet, Path: "/docs/openapi.yaml"},
)

// Handlers groups the endpoint implementations.
type Handlers struct {
	Auth     *handler.AuthHandler
	Projects *handler.ProjectHandler
	Tasks    *handler.TaskHandler
	Notes    *handler.NoteHandler
	Users    *handler.UserHandler
	Health   *handler.HealthHandler
	// Metrics serves /metrics; nil leaves the route unregistered.
	Metrics http.Handler
}

// Options carries the cross-cutting pieces. Nil middleware is skipped.
type Options struct {
	Tokens *token.Engine
	Gate   middleware.GateRecorder
	Log    *zap.Logger

	// Instrument records request metrics.
	Instrument echo.MiddlewareFunc
	// AuthLimiter throttles /v1/auth.
	AuthLimiter echo.MiddlewareFunc
	// SearchCache caches user search responses.
	SearchCache echo.MiddlewareFunc

	MaxUploadBytes int64
}

// New returns an echo instance with every route registered. Middleware runs
// in this order: panic recovery, request log, metrics, authentication gate.
func New(h Handlers, o Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.Handler(o.Log)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(o.Log))
	if o.Instrument != nil {
		e.Use(o.Instrument)
	}
	e.Use(middleware.Authenticate(o.Tokens, PublicRoutes, o.Gate))

	RegisterRoutes(e, h)
	RegisterAuth(e, h.Auth, o.AuthLimiter)
	RegisterProjects(e, h.Projects, h.Tasks, o.MaxUploadBytes)
	RegisterNotes(e, h.Notes)
	RegisterUsers(e, h.Users, o.SearchCache)
	return e
}

// RegisterRoutes registers the service, docs and probe endpoints.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/", handler.Root)
	e.GET("/home", handler.Home)
	e.GET("/docs", handler.Docs)
	e.GET("/docs/openapi.yaml", handler.OpenAPI)
	e.GET("/healthz", h.Health.Health)
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}
}

func use(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
