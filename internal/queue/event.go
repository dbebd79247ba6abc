// Package queue carries password reset notices over RabbitMQ: the API
// publishes one message per issued token and a background consumer hands
// each message to a Mailer.
package queue

import (
	"net/url"
	"time"

	"github.com/iliyamo/tasksphere/internal/reset"
)

// PasswordResetQueue is the durable queue reset notices travel on.
const PasswordResetQueue = "password.reset"

// PasswordResetRequested is published when a reset token has been stored.
// It contains everything the mailer needs so it never queries the database.
type PasswordResetRequested struct {
	UserID      uint64 `json:"user_id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	ResetLink   string `json:"reset_link"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}

// ResetLink appends the token to base as the "token" query parameter.
func ResetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// NewPasswordResetRequested builds the event for n.
func NewPasswordResetRequested(n reset.Notice, linkBase string, now time.Time) PasswordResetRequested {
	return PasswordResetRequested{
		UserID:      n.UserID,
		Email:       n.Email,
		FirstName:   n.FirstName,
		ResetLink:   ResetLink(linkBase, n.Token),
		ExpiresAt:   n.ExpiresAt.UTC().Format(time.RFC3339),
		RequestedAt: now.UTC().Format(time.RFC3339),
	}
}
