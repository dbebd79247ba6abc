package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/repository"
	"github.com/iliyamo/tasksphere/internal/reset"
	"github.com/iliyamo/tasksphere/internal/token"
	"github.com/iliyamo/tasksphere/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Users      UserStore
	Tokens     *token.Engine
	Resets     Resetter
	BcryptCost int
	Log        *zap.Logger

	// dummyHash is compared against on unknown e-mails so a failed login
	// costs the same bcrypt work whether or not the account exists.
	dummyHash string
}

func NewAuthHandler(users UserStore, tokens *token.Engine, resets Resetter, bcryptCost int, log *zap.Logger) (*AuthHandler, error) {
	dummy, err := utils.HashPassword("tasksphere-dummy-password", bcryptCost)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Users: users, Tokens: tokens, Resets: resets, BcryptCost: bcryptCost, Log: log, dummyHash: dummy}, nil
}

// ----- DTOs -----

type signupReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type userPart struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}
type loginResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userPart  `json:"user"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role}
}

// validEmail accepts a bare address, not a display-name form.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Signup: create the account. It does not log the user in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = repository.NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if !validEmail(req.Email) {
		return apperr.Validation("a valid email is required")
	}
	if req.FirstName == "" || req.LastName == "" {
		return apperr.Validation("first_name and last_name are required")
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return apperr.Validation(err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	u := model.User{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName, Role: model.RoleUser}
	uid, err := h.Users.Create(ctx, u, req.Password, h.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return apperr.Conflict("email_exists", "an account with this email already exists")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	u.ID = uid
	h.Log.Info("user registered", zap.Uint64("user_id", uid))
	return c.JSON(http.StatusCreated, toUserPart(u))
}

// Login: verify credentials and issue an access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = repository.NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return apperr.Validation("email and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	invalid := apperr.Authentication("invalid_credentials", "invalid email or password", nil)
	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(h.dummyHash, req.Password)
		return invalid
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return invalid
	}

	access, err := h.Tokens.Issue(u.Email, u.ID)
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, loginResp{Token: access.Token, ExpiresAt: access.ExpiresAt, User: toUserPart(u)})
}

// Me returns the caller's account.
func (h *AuthHandler) Me(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		// valid token for an account that no longer exists
		return apperr.Authentication("unknown_user", "account no longer exists", err)
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}

// Forgot starts a password reset. The response is 204 whether or not the
// e-mail belongs to an account, and store failures are logged rather than
// reported so they cannot reveal it either.
func (h *AuthHandler) Forgot(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = repository.NormalizeEmail(req.Email)
	if !validEmail(req.Email) {
		return apperr.Validation("a valid email is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Resets.RequestReset(ctx, req.Email); err != nil {
		h.Log.Error("password reset request failed", zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// Reset consumes a reset token and sets the new password.
func (h *AuthHandler) Reset(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		return apperr.Validation("token and new_password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	err := h.Resets.ConsumeReset(ctx, req.Token, req.NewPassword)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, reset.ErrTokenNotFound):
		return apperr.ResetToken("reset_token_invalid", "reset token is invalid", err)
	case errors.Is(err, reset.ErrTokenExpired):
		return apperr.ResetToken("reset_token_expired", "reset token has expired", err)
	case errors.Is(err, utils.ErrPasswordTooShort), errors.Is(err, utils.ErrPasswordTooLong):
		return apperr.Validation(err.Error())
	default:
		return apperr.Internal(err)
	}
}
