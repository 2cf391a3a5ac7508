package api

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chris/taskchat/internal/agent"
)

const userIDKey = "user_id"

// requireUser authenticates the request and stores the user id on the context.
func requireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return fmt.Errorf("%w: %w", agent.ErrUnauthorized, err)
			}
			if id == "" {
				return agent.ErrUnauthorized
			}
			c.Set(userIDKey, id)
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// requestLogger emits one entry per request. Errors are rendered here so the
// logged status is the one the client sees.
func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			res := c.Response()
			entry := logger.WithFields(log.Fields{
				"method":     c.Request().Method,
				"path":       c.Path(),
				"status":     res.Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"request_id": res.Header().Get(echo.HeaderXRequestID),
			})
			if id := userID(c); id != "" {
				entry = entry.WithField(userIDKey, id)
			}
			entry.Info("request")
			return nil
		}
	}
}

func tracing(tracer trace.Tracer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, span := tracer.Start(req.Context(), req.Method+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				code, _ := statusFor(err)
				span.SetAttributes(attribute.Int("http.status_code", code))
				if code >= 500 {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				return err
			}
			span.SetAttributes(attribute.Int("http.status_code", c.Response().Status))
			return nil
		}
	}
}
