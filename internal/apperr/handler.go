package apperr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler returns an echo.HTTPErrorHandler that writes every failure as a
// Body. Classified errors keep their status and tag. echo's own HTTP errors
// (unknown route, bad method, oversized body, rate limit) are mapped onto the same shape.
// Everything else becomes a generic 500 and is logged with its cause.
func Handler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ae := classify(err)
		if ae.Kind == KindInternal {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		body := ae.Body()
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(body.Status)
		} else {
			werr = c.JSON(body.Status, body)
		}
		if werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}

func classify(err error) *Error {
	if ae, ok := As(err); ok {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fromHTTPError(he)
	}
	return Internal(err)
}

func fromHTTPError(he *echo.HTTPError) *Error {
	switch he.Code {
	case http.StatusNotFound:
		return NotFound("resource not found")
	case http.StatusUnauthorized:
		return Authentication("unauthorized", "authentication required", he)
	case http.StatusForbidden:
		return Forbidden("access denied")
	case http.StatusRequestEntityTooLarge:
		return &Error{Kind: KindValidation, Tag: "payload_too_large", Message: "request body too large"}
	case http.StatusUnsupportedMediaType:
		return &Error{Kind: KindValidation, Tag: "unsupported_media_type", Message: "unsupported media type"}
	case http.StatusMethodNotAllowed:
		return MethodNotAllowed()
	case http.StatusTooManyRequests:
		return RateLimited()
	}
	if he.Code >= 400 && he.Code < 500 {
		return Validation(strings.ToLower(http.StatusText(he.Code)))
	}
	return Internal(he)
}

// StatusOf returns the status Handler would write for err.
func StatusOf(err error) int {
	return classify(err).Kind.Status()
}
