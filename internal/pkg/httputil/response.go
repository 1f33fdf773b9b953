// Package httputil provides HTTP response helper functions and middleware.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// Error codes carried in failure envelopes.
const (
	CodeValidation      = "Validation"
	CodeUnauthorized    = "Unauthorized"
	CodeForbidden       = "Forbidden"
	CodeNotFound        = "NotFound"
	CodeConflict        = "Conflict"
	CodeTooManyRequests = "TooManyRequests"
	CodeInternal        = "Internal"
)

// Envelope wraps every JSON response body.
type Envelope struct {
	WasSuccessful bool      `json:"wasSuccessful"`
	Message       any       `json:"message"`
	ProcessedAt   time.Time `json:"processedAt"`
}

// ErrorBody is the message of a failure envelope.
type ErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Details     any    `json:"details,omitempty"`
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// NewSuccess builds a success envelope around payload.
func NewSuccess(payload any) Envelope {
	return Envelope{WasSuccessful: true, Message: payload, ProcessedAt: now()}
}

// NewFailure builds a failure envelope.
func NewFailure(code, description string, details any) Envelope {
	return Envelope{
		WasSuccessful: false,
		Message:       ErrorBody{Code: code, Description: description, Details: details},
		ProcessedAt:   now(),
	}
}

// JSON writes a raw JSON response without envelope.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes a success envelope with payload.
func Success(w http.ResponseWriter, status int, payload any) {
	JSON(w, status, NewSuccess(payload))
}

// Failure writes a failure envelope.
func Failure(w http.ResponseWriter, status int, code, description string) {
	JSON(w, status, NewFailure(code, description, nil))
}

// FailureWithDetails writes a failure envelope carrying extra details.
func FailureWithDetails(w http.ResponseWriter, status int, code, description string, details any) {
	JSON(w, status, NewFailure(code, description, details))
}

// InvalidJSON writes the response for an undecodable request body.
func InvalidJSON(w http.ResponseWriter) {
	Failure(w, http.StatusBadRequest, CodeValidation, "invalid json")
}

// ValidationError writes a 400 validation failure.
// If err is validator.ValidationErrors, details list the offending fields.
func ValidationError(w http.ResponseWriter, err error) {
	var details any
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		fieldErrors := make([]map[string]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			fieldErrors = append(fieldErrors, map[string]string{
				"field":   e.Namespace(),
				"message": e.Tag(),
			})
		}
		details = fieldErrors
	} else {
		details = err.Error()
	}

	FailureWithDetails(w, http.StatusBadRequest, CodeValidation, "validation error", details)
}
