package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/chris/taskchat/internal/agent"
	"github.com/chris/taskchat/internal/db"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error to its HTTP status and the message shown to clients.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, agent.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, agent.ErrEmptyMessage),
		errors.Is(err, db.ErrTitleRequired),
		errors.Is(err, db.ErrInvalidStatus):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, errDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, agent.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "the assistant is temporarily unavailable, please try again"
	}
	return http.StatusInternalServerError, "internal error"
}

func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := statusFor(err)
		entry := logger.WithError(err).WithFields(log.Fields{
			"path":       c.Path(),
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		})
		switch {
		case code >= http.StatusInternalServerError:
			entry.Error("request failed")
		case code == http.StatusUnauthorized:
			entry.Warn("authentication failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, errorResponse{Error: msg})
		}
		if err != nil {
			logger.WithError(err).Warn("writing error response")
		}
	}
}
