package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tasksphere/internal/apperr"
	"github.com/iliyamo/tasksphere/internal/middleware"
	"github.com/iliyamo/tasksphere/internal/model"
	"github.com/iliyamo/tasksphere/internal/policy"
	"github.com/iliyamo/tasksphere/internal/repository"
	"github.com/iliyamo/tasksphere/internal/token"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// identity returns the caller bound by the authentication gate. Protected
// handlers only run behind the gate, so a missing identity means the route
// was wired without it.
func identity(c echo.Context) (token.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return token.Identity{}, apperr.Authentication(middleware.OutcomeMissingToken, "authentication token is required", nil)
	}
	return id, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// bind decodes the request body, reporting failures as validation errors.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return err
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}

// storeErr classifies a repository failure. what names the missing entity.
func storeErr(err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(what + " not found")
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict("conflict", "referenced record does not exist")
	default:
		return apperr.Internal(err)
	}
}

// loadProject fetches a project and checks the caller may perform action on it.
func loadProject(ctx context.Context, projects ProjectStore, id token.Identity, projectID uint64, action policy.Action) (model.Project, error) {
	p, err := projects.GetByID(ctx, projectID)
	if err != nil {
		return model.Project{}, storeErr(err, "project")
	}
	if err := policy.Authorize(id, action, p); err != nil {
		return model.Project{}, err
	}
	return p, nil
}
