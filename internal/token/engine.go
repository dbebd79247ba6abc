// Package token issues and verifies the HS256 access tokens handed out at
// login. Tokens are self-contained: every request reconstructs the caller's
// Identity from the signed payload and nothing is stored server-side, so a
// token can only be revoked by letting it expire or by rotating the secret.
package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Verify returns exactly one of these.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
)

// Identity is the claim set carried by an access token.
type Identity struct {
	Email     string
	UserID    uint64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AccessToken is a signed token together with its expiry, as returned to
// clients after login.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Claims is the JWT payload. sub mirrors uid as a string so that generic JWT
// tooling can read the subject.
type Claims struct {
	Email  string `json:"email"`
	UserID uint64 `json:"uid"`
	jwt.RegisteredClaims
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the time source used for iat/exp and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine signs and verifies tokens with one process-wide secret. It holds no
// mutable state after construction and is safe for concurrent use.
type Engine struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewEngine builds an Engine. The secret is copied so later changes to the
// caller's slice have no effect.
func NewEngine(secret []byte, ttl time.Duration, opts ...Option) (*Engine, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if ttl < time.Second {
		return nil, errors.New("token: ttl must be at least one second")
	}
	e := &Engine{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(e.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	)
	return e, nil
}

// TTL is the default lifetime of issued tokens.
func (e *Engine) TTL() time.Duration { return e.ttl }

// Issue signs a token for the user with the engine's default TTL.
func (e *Engine) Issue(email string, userID uint64) (AccessToken, error) {
	return e.IssueWithTTL(email, userID, e.ttl)
}

// IssueWithTTL signs a token that expires ttl from now.
func (e *Engine) IssueWithTTL(email string, userID uint64, ttl time.Duration) (AccessToken, error) {
	if email == "" || userID == 0 {
		return AccessToken{}, errors.New("token: email and user id are required")
	}
	if ttl < time.Second {
		return AccessToken{}, errors.New("token: ttl must be at least one second")
	}
	now := e.now().UTC()
	iat := now.Truncate(time.Second)
	// exp is whole seconds and never before now+ttl.
	exp := now.Add(ttl).Add(time.Second - 1).Truncate(time.Second)

	claims := Claims{
		Email:  email,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
//
// The MAC is checked over the exact header.payload text before any claim is
// decoded, so altering any byte of the payload or signature is reported as
// ErrInvalidSignature rather than as a decoding problem.
func (e *Engine) Verify(raw string) (Identity, error) {
	if err := e.checkSignature(raw); err != nil {
		return Identity{}, err
	}

	var claims Claims
	_, err := e.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return e.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Identity{}, ErrInvalidSignature
	default:
		return Identity{}, ErrMalformed
	}

	if claims.Email == "" || claims.UserID == 0 || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Identity{}, ErrMalformed
	}
	if claims.Subject != "" && claims.Subject != strconv.FormatUint(claims.UserID, 10) {
		return Identity{}, ErrMalformed
	}
	id := Identity{
		Email:     claims.Email,
		UserID:    claims.UserID,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if !id.ExpiresAt.After(id.IssuedAt) {
		return Identity{}, ErrMalformed
	}
	return id, nil
}

// ExtractEmail returns the email claim, failing exactly as Verify does.
func (e *Engine) ExtractEmail(raw string) (string, error) {
	id, err := e.Verify(raw)
	if err != nil {
		return "", err
	}
	return id.Email, nil
}

// ExtractUserID returns the user id claim, failing exactly as Verify does.
func (e *Engine) ExtractUserID(raw string) (uint64, error) {
	id, err := e.Verify(raw)
	if err != nil {
		return 0, err
	}
	return id.UserID, nil
}

var strictB64 = base64.RawURLEncoding.Strict()

func (e *Engine) checkSignature(raw string) error {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return ErrMalformed
	}
	sig, err := strictB64.DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return ErrInvalidSignature
	}
	want, err := jwt.SigningMethodHS256.Sign(parts[0]+"."+parts[1], e.secret)
	if err != nil {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
