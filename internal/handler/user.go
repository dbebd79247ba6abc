package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tasksphere/internal/apperr"
)

// maxSearchResults caps GET /v1/users/search.
const maxSearchResults = 10

// UserHandler serves the member lookup used when sharing projects.
type UserHandler struct {
	Users UserStore
}

func NewUserHandler(users UserStore) *UserHandler { return &UserHandler{Users: users} }

type userSummary struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Search returns up to ten users whose e-mail starts with ?q=.
func (h *UserHandler) Search(c echo.Context) error {
	if _, err := identity(c); err != nil {
		return err
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if len(q) < 2 {
		return apperr.Validation("query parameter q needs at least 2 characters")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := h.Users.SearchByEmail(ctx, q, maxSearchResults)
	if err != nil {
		return apperr.Internal(err)
	}
	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName})
	}
	return c.JSON(http.StatusOK, out)
}
