package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/services"
)

// ErrorBody is the uniform error shape returned by every route and carried
// by SSE error events.
type ErrorBody struct {
	Kind      errkind.Kind `json:"kind"`
	Message   string       `json:"message"`
	RequestID string       `json:"request_id,omitempty"`
}

// writeError maps a service or workflow error onto the uniform error body.
func writeError(c *echo.Context, err error) error {
	kind, message := classify(err)
	status := errkind.HTTPStatus(kind)
	if status >= http.StatusInternalServerError && kind == errkind.InternalError {
		slog.Error("unexpected service error", "request_id", reqID(c), "error", err)
		message = "internal server error"
	}
	return writeErrorKind(c, status, kind, message)
}

func writeErrorKind(c *echo.Context, status int, kind errkind.Kind, message string) error {
	return c.JSON(status, &ErrorBody{
		Kind:      kind,
		Message:   message,
		RequestID: reqID(c),
	})
}

// classify folds the service-layer sentinels into the error taxonomy.
func classify(err error) (errkind.Kind, string) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return errkind.InvalidInput, validErr.Error()
	}
	switch {
	case errors.Is(err, services.ErrNotFound):
		return errkind.NotFound, "resource not found"
	case errors.Is(err, services.ErrAlreadyExists):
		return errkind.InvalidInput, "resource already exists"
	case errors.Is(err, services.ErrNotCancellable):
		return errkind.Cancelled, "session is not in a cancellable state"
	}

	var classified *errkind.Error
	if errors.As(err, &classified) {
		return classified.Kind, classified.Message
	}
	return errkind.InternalError, err.Error()
}
