// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/i18n"
	appmw "codeberg.org/psuyearbook/yearbook-api/internal/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.HTTPErrorHandler = errorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(noStore())
	e.Use(middleware.Gzip())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", bodyLimitMB(cfg))))
	e.Use(appmw.Locale())
}

// bodyLimitMB leaves room for two evidence uploads in one request.
func bodyLimitMB(cfg *config.Config) int {
	limit := cfg.Server.MaxBodySize
	if uploads := 2*cfg.Evidence.MaxUploadMB + 1; uploads > limit {
		limit = uploads
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
				slog.String("ip", v.RemoteIP),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// noStore keeps tokens and codes out of shared caches.
func noStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}

// errorHandler renders errors that escape the handlers, such as unknown
// routes or oversized bodies, in the API's error shape.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
	}

	kind, messageID := "internal", "error_internal"
	switch status {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		kind, messageID = "not_found", "error_not_found"
	case http.StatusRequestEntityTooLarge:
		kind, messageID = "invalid_input", "error_too_large"
	case http.StatusUnauthorized:
		kind, messageID = "unauthorized", "error_unauthorized"
	case http.StatusForbidden:
		kind, messageID = "forbidden", "error_forbidden"
	default:
		if status < http.StatusInternalServerError {
			kind, messageID = "invalid_input", "error_invalid_input"
		} else {
			slog.ErrorContext(c.Request().Context(), "unhandled error", "error", err)
		}
	}

	body := map[string]string{
		"status":  "error",
		"error":   kind,
		"message": i18n.T(c.Request().Context(), messageID),
	}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		slog.ErrorContext(c.Request().Context(), "failed to write error response", "error", werr)
	}
}
