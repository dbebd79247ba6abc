// Package reset implements the forgot-password flow: issuing a single-use
// reset token, expiring it and consuming it exactly once.
//
// A user has at most one live token. Requesting a new one replaces the old
// one, and consuming a token clears it in the same conditional update that
// installs the new password hash. Operations on the same user are serialized
// by a per-user lock; the store's conditional update covers other processes.
package reset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/repository"
	"github.com/iliyamo/tasksphere/internal/utils"
)

// Consumption failures.
var (
	ErrTokenNotFound = errors.New("reset token not found")
	ErrTokenExpired  = errors.New("reset token expired")
)

// DefaultWindow is how long a reset token stays valid.
const DefaultWindow = 30 * time.Minute

// Store is the part of the credential store the manager needs. Lookups
// return repository.ErrNotFound when nothing matches.
type Store interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByResetTokenHash(ctx context.Context, hash string) (model.User, error)
	// SetResetToken overwrites any pending token of the user.
	SetResetToken(ctx context.Context, userID uint64, hash string, expiresAt time.Time) error
	// ConsumeResetToken replaces the password hash and clears the reset fields
	// only if the stored hash still equals hash and has not expired at now.
	// It reports whether a row was updated.
	ConsumeResetToken(ctx context.Context, userID uint64, hash, passwordHash string, now time.Time) (bool, error)
	// ClearResetToken removes the pending token if it still equals hash.
	ClearResetToken(ctx context.Context, userID uint64, hash string) error
}

// Notice is what the notifier needs to deliver a reset link.
type Notice struct {
	UserID    uint64
	Email     string
	FirstName string
	Token     string
	ExpiresAt time.Time
}

// Notifier delivers reset notices. Delivery happens outside the request and
// its failures never reach the caller of RequestReset.
type Notifier interface {
	NotifyPasswordReset(ctx context.Context, n Notice) error
}

// Recorder observes reset outcomes (metrics).
type Recorder interface {
	ResetEvent(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ResetEvent(string) {}

// Manager runs the reset flow.
type Manager struct {
	store         Store
	notifier      Notifier
	log           *zap.Logger
	rec           Recorder
	window        time.Duration
	bcryptCost    int
	notifyTimeout time.Duration
	now           func() time.Time

	locks    *userLocks
	inflight sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets the token validity window.
func WithWindow(d time.Duration) Option { return func(m *Manager) { m.window = d } }

func WithBcryptCost(c int) Option { return func(m *Manager) { m.bcryptCost = c } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

func WithRecorder(r Recorder) Option { return func(m *Manager) { m.rec = r } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithNotifyTimeout bounds a single notifier call.
func WithNotifyTimeout(d time.Duration) Option { return func(m *Manager) { m.notifyTimeout = d } }

// NewManager wires a Manager. store and notifier are required.
func NewManager(store Store, notifier Notifier, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		notifier:      notifier,
		log:           zap.NewNop(),
		rec:           nopRecorder{},
		window:        DefaultWindow,
		bcryptCost:    10,
		notifyTimeout: 15 * time.Second,
		now:           time.Now,
		locks:         newUserLocks(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// RequestReset issues a fresh token for the account registered under email
// and hands it to the notifier. An unknown email is not an error: the caller
// sees the same outcome either way.
func (m *Manager) RequestReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := m.store.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		m.rec.ResetEvent("requested_unknown")
		m.log.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	raw, err := utils.NewResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := m.now().UTC().Add(m.window)

	unlock := m.locks.lock(u.ID)
	err = m.store.SetResetToken(ctx, u.ID, utils.HashToken(raw), expiresAt)
	unlock()
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	m.rec.ResetEvent("requested")
	m.log.Info("password reset token issued", zap.Uint64("user_id", u.ID), zap.Time("expires_at", expiresAt))

	m.dispatch(ctx, Notice{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		Token:     raw,
		ExpiresAt: expiresAt,
	})
	return nil
}

// dispatch delivers n in the background. The request context's values are
// kept but not its cancellation: the notice must still go out after the
// response has been written.
func (m *Manager) dispatch(ctx context.Context, n Notice) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.notifyTimeout)
		defer cancel()
		if err := m.notifier.NotifyPasswordReset(nctx, n); err != nil {
			m.rec.ResetEvent("notify_failed")
			m.log.Warn("password reset notification failed", zap.Uint64("user_id", n.UserID), zap.Error(err))
		}
	}()
}

// Wait blocks until every notification started so far has finished.
func (m *Manager) Wait() { m.inflight.Wait() }

// ConsumeReset sets newPassword for the user holding token and invalidates
// the token. An expired token is cleared as a side effect of the check.
func (m *Manager) ConsumeReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		m.rec.ResetEvent("consume_not_found")
		return ErrTokenNotFound
	}
	if err := utils.CheckPassword(newPassword); err != nil {
		return err
	}
	hash := utils.HashToken(token)

	u, err := m.store.GetByResetTokenHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		m.rec.ResetEvent("consume_not_found")
		return ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup reset token: %w", err)
	}

	unlock := m.locks.lock(u.ID)
	defer unlock()

	now := m.now().UTC()
	if u.ResetTokenExpiresAt == nil || now.After(*u.ResetTokenExpiresAt) {
		if err := m.store.ClearResetToken(ctx, u.ID, hash); err != nil {
			m.log.Warn("clear expired reset token", zap.Uint64("user_id", u.ID), zap.Error(err))
		}
		m.rec.ResetEvent("consume_expired")
		return ErrTokenExpired
	}

	pwHash, err := utils.HashPassword(newPassword, m.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	ok, err := m.store.ConsumeResetToken(ctx, u.ID, hash, pwHash, now)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		// replaced or consumed between lookup and update
		m.rec.ResetEvent("consume_not_found")
		return ErrTokenNotFound
	}

	m.rec.ResetEvent("consumed")
	m.log.Info("password reset completed", zap.Uint64("user_id", u.ID))
	return nil
}
