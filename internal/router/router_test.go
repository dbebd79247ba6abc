package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/middleware"
	"github.com/iliyamo/tasksphere/internal/token"
)

func newTestEcho(t *testing.T) *httptest.Server {
	t.Helper()
	engine, err := token.NewEngine([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	e := New(Handlers{Metrics: http.NotFoundHandler()}, Options{Tokens: engine, Log: zap.NewNop(), MaxUploadBytes: 1024})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestPublicRoutesAreRegistered(t *testing.T) {
	engine, err := token.NewEngine([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	e := New(Handlers{Metrics: http.NotFoundHandler()}, Options{Tokens: engine, Log: zap.NewNop()})

	registered := map[middleware.Route]bool{}
	for _, r := range e.Routes() {
		registered[middleware.Route{Method: r.Method, Path: r.Path}] = true
	}
	for _, r := range PublicRoutes.Routes() {
		assert.True(t, registered[r], "public route %s %s is not registered", r.Method, r.Path)
	}
}

func TestEveryOtherRouteNeedsToken(t *testing.T) {
	engine, err := token.NewEngine([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	e := New(Handlers{Metrics: http.NotFoundHandler()}, Options{Tokens: engine, Log: zap.NewNop()})

	checked := 0
	for _, r := range e.Routes() {
		if PublicRoutes.Contains(r.Method, r.Path) || strings.HasSuffix(r.Path, "/*") || r.Method == echoRouteNotFound {
			continue
		}
		path := strings.NewReplacer(":id", "1", ":taskId", "1", ":tag", "x").Replace(r.Path)
		req := httptest.NewRequest(r.Method, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.Method, r.Path)
		assert.Contains(t, rec.Body.String(), `"error":"missing_token"`)
		checked++
	}
	assert.Greater(t, checked, 15)
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := newTestEcho(t)
	resp, err := http.Get(srv.URL + "/v1/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWrongMethodIs405(t *testing.T) {
	engine, err := token.NewEngine([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	e := New(Handlers{Metrics: http.NotFoundHandler()}, Options{Tokens: engine, Log: zap.NewNop()})
	tok, err := engine.Issue("a@example.com", 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"method_not_allowed"`)
}

func TestDocsArePublic(t *testing.T) {
	srv := newTestEcho(t)
	for _, p := range []string{"/", "/docs", "/docs/openapi.yaml"} {
		resp, err := http.Get(srv.URL + p)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(srv.URL + "/home")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/docs", resp.Header.Get("Location"))
}

// echo registers RouteNotFound handlers under this pseudo method.
const echoRouteNotFound = "echo_route_not_found"
