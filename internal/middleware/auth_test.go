package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/token"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type gateCounter map[string]int

func (g gateCounter) GateDecision(outcome string) { g[outcome]++ }

func newGateServer(t *testing.T, clk *clock, rec GateRecorder) (*echo.Echo, *token.Engine) {
	t.Helper()
	engine, err := token.NewEngine(secret, time.Hour, token.WithClock(clk.Now))
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = apperr.Handler(zap.NewNop())
	public := NewRouteSet(Route{http.MethodPost, "/v1/auth/login"}, Route{http.MethodGet, "/healthz"})
	e.Use(Authenticate(engine, public, rec))

	e.POST("/v1/auth/login", func(c echo.Context) error {
		_, bound := IdentityFrom(c)
		return c.JSON(http.StatusOK, echo.Map{"bound": bound})
	})
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/v1/auth/me", func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"email": id.Email, "uid": id.UserID})
	})
	return e, engine
}

func do(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) apperr.Body {
	t.Helper()
	var b apperr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func TestAuthenticate_PublicRoutesSkipGate(t *testing.T) {
	counter := gateCounter{}
	e, _ := newGateServer(t, &clock{now: time.Now()}, counter)

	rec := do(e, http.MethodPost, "/v1/auth/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bound":false}`, rec.Body.String())

	// a garbage header on a public route is ignored
	rec = do(e, http.MethodGet, "/healthz", "Bearer garbage")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, counter[OutcomePublic])
}

func TestAuthenticate_Rejections(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	e, engine := newGateServer(t, clk, nil)

	valid, err := engine.Issue("alice@example.com", 7)
	require.NoError(t, err)
	parts := strings.Split(valid.Token, ".")
	tampered := parts[0] + "." + parts[1] + "." + flipFirst(parts[2])

	other, err := token.NewEngine([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, token.WithClock(clk.Now))
	require.NoError(t, err)
	foreign, err := other.Issue("alice@example.com", 7)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		tag    string
	}{
		{"no header", "", OutcomeMissingToken},
		{"basic scheme", "Basic dXNlcjpwYXNz", OutcomeInvalidFormat},
		{"lowercase bearer", "bearer " + valid.Token, OutcomeInvalidFormat},
		{"empty bearer", "Bearer ", OutcomeInvalidFormat},
		{"garbage", "Bearer not-a-token", OutcomeMalformedToken},
		{"tampered signature", "Bearer " + tampered, OutcomeBadSignature},
		{"foreign secret", "Bearer " + foreign.Token, OutcomeBadSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, "/v1/auth/me", tc.header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, http.StatusUnauthorized, body.Status)
			assert.Equal(t, tc.tag, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.Contains(t, rec.Header().Get(echo.HeaderWWWAuthenticate), "Bearer")
		})
	}
}

func TestAuthenticate_ValidThenExpired(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	counter := gateCounter{}
	e, engine := newGateServer(t, clk, counter)

	tok, err := engine.Issue("alice@example.com", 7)
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/v1/auth/me", "Bearer "+tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"alice@example.com","uid":7}`, rec.Body.String())

	clk.now = clk.now.Add(time.Hour)
	rec = do(e, http.MethodGet, "/v1/auth/me", "Bearer "+tok.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, OutcomeExpired, decodeBody(t, rec).Error)

	assert.Equal(t, 1, counter[OutcomeVerified])
	assert.Equal(t, 1, counter[OutcomeExpired])
}

func TestAuthenticate_UnmatchedRouteIs404(t *testing.T) {
	e, _ := newGateServer(t, &clock{now: time.Now()}, nil)
	rec := do(e, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteSet(t *testing.T) {
	s := NewRouteSet(Route{http.MethodGet, "/docs"}, Route{http.MethodPost, "/v1/auth/login"})
	assert.True(t, s.Contains(http.MethodGet, "/docs"))
	assert.True(t, s.Contains(http.MethodHead, "/docs"))
	assert.False(t, s.Contains(http.MethodGet, "/v1/auth/login"))
	assert.False(t, s.Contains(http.MethodPost, "/v1/auth/login/"))
	assert.Len(t, s.Routes(), 2)
}

func flipFirst(s string) string {
	b := []byte(s)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	return string(b)
}
