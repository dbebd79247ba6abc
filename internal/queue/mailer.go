package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Mailer delivers a reset notice to its recipient.
type Mailer interface {
	SendPasswordReset(ctx context.Context, ev PasswordResetRequested) error
}

// FileMailer appends one line per notice to <Dir>/password_reset.log. It
// stands in for an SMTP relay, which lives outside this service.
type FileMailer struct {
	Dir string

	mu sync.Mutex
}

const outboxFile = "password_reset.log"

func (m *FileMailer) SendPasswordReset(_ context.Context, ev PasswordResetRequested) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.Dir, 0o750); err != nil {
		return fmt.Errorf("mkdir outbox: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(m.Dir, outboxFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Password reset | user_id=%d | to=%q | name=%q | link=%s | expires_at=%s\n",
		ev.RequestedAt, ev.UserID, ev.Email, ev.FirstName, ev.ResetLink, ev.ExpiresAt)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}
