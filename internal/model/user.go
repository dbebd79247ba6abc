package model

import "time"

// Role values stored in users.role. Roles are informational only; access to
// projects is decided by ownership and membership.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents an account as stored in the `users` table.
//
// Fields:
//
//	ID                  – primary key identifier of the user.
//	Email               – unique, lower-cased email address.
//	PasswordHash        – bcrypt hash of the password.
//	FirstName, LastName – display name parts.
//	Role                – USER or ADMIN.
//	ResetTokenHash      – SHA-256 hex digest of the pending reset token (nil when none).
//	ResetTokenExpiresAt – absolute expiry of the pending reset token (nil when none).
//	CreatedAt/UpdatedAt – row timestamps.
type User struct {
	ID                  uint64
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Role                string
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasPendingReset reports whether a reset token is currently stored.
func (u User) HasPendingReset() bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiresAt != nil
}
