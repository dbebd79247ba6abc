package utils // package utils provides helpers for password hashing and opaque secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// resetTokenBytes is the amount of entropy in a password reset token.
const resetTokenBytes = 32

// NewResetToken returns a cryptographically random, hex-encoded token
// suitable for a one-time password reset link.
func NewResetToken() (string, error) {
	return randomHex(resetTokenBytes)
}

// HashToken returns the SHA-256 digest of raw as a hex string. Only this
// digest is persisted, so a leaked users table cannot be replayed against
// the reset endpoint.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns hex-encoded random data from n bytes of crypto/rand.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
