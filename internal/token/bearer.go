package token

import (
	"errors"
	"strings"
)

// Header format errors. They describe a client mistake in how the token was
// presented and are kept apart from verification failures.
var (
	ErrMissingToken = errors.New("authorization header missing")
	ErrNotBearer    = errors.New("authorization header is not a bearer token")
)

const bearerPrefix = "Bearer "

// ParseBearer extracts the raw token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrNotBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return "", ErrNotBearer
	}
	return raw, nil
}
