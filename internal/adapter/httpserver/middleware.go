package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/platform/correlation"
)

const ctxKeyUserID = "userID"

// correlationMiddleware reuses the caller's X-Request-ID so that view and
// backend log lines share one ID.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlation.Header)
		if id == "" {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			return HandleError(c, err)
		}
	}
}

// requireAuth rejects requests while no user is signed in. A session that is
// still restoring counts as signed out.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap := s.session.Snapshot()
		if !snap.Authenticated() {
			return apperrors.AuthorizationFailure("not signed in")
		}
		c.Set(ctxKeyUserID, snap.Profile.ID)
		return next(c)
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"kind", err.Kind,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	if len(err.Fields) > 0 {
		attrs = append(attrs, "fields", err.FieldNames())
	}

	if userID := c.Get(ctxKeyUserID); userID != nil {
		attrs = append(attrs, "user_id", userID)
	}

	ctx := c.Request().Context()
	switch err.Kind {
	case apperrors.KindValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.KindAuthorization:
		slog.InfoContext(ctx, "Authorization error", attrs...)
	case apperrors.KindNetwork:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Backend unreachable", attrs...)
	case apperrors.KindServer:
		slog.ErrorContext(ctx, "Backend server error", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Unexpected error", attrs...)
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

// failure turns a failed command result into a handler error.
func failure(res apperrors.Result) error {
	if res.OK {
		return nil
	}
	if res.Failure == nil {
		return apperrors.UnknownFailure("command failed", nil)
	}
	return res.Failure
}
