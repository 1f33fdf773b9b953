package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/pizzeria/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Code    string
	Message string // if empty, uses err.Error()
}

// HandleError maps a domain error to a failure envelope using provided mappings.
// If no mapping matches, logs the error and returns 500 without exposing it.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			code := m.Code
			if code == "" {
				code = codeForStatus(m.Status)
			}
			Failure(w, m.Status, code, msg)
			return
		}
	}
	InternalError(ctx, w, err)
}

// InternalError logs err and writes a generic 500 envelope.
func InternalError(ctx context.Context, w http.ResponseWriter, err error) {
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Failure(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeTooManyRequests
	default:
		return CodeInternal
	}
}
