package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/store"
)

// Error categories.
const (
	CategoryValidationError    = "VALIDATION_ERROR"
	CategoryObjectNotFound     = "OBJECT_NOT_FOUND"
	CategoryConflict           = "CONFLICT"
	CategoryConfigurationError = "CONFIGURATION_ERROR"
	CategoryUpstreamError      = "UPSTREAM_ERROR"
	CategoryUnauthorized       = "UNAUTHORIZED"
	CategoryRateLimits         = "RATE_LIMITS"
	CategoryInternalError      = "INTERNAL_ERROR"
)

// Error is the JSON error envelope.
type Error struct {
	Status        string        `json:"status"`
	Message       string        `json:"message"`
	CorrelationID string        `json:"correlationId"`
	Category      string        `json:"category"`
	Errors        []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail represents a single error within an Error.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	In      string `json:"in,omitempty"`
}

func newError(category, message, correlationID string) *Error {
	return &Error{
		Status:        "error",
		Message:       message,
		CorrelationID: correlationID,
		Category:      category,
	}
}

// NewNotFoundError creates a 404 error with the OBJECT_NOT_FOUND category.
func NewNotFoundError(message, correlationID string) *Error {
	return newError(CategoryObjectNotFound, message, correlationID)
}

// NewValidationError creates a 400 error with the VALIDATION_ERROR category.
func NewValidationError(message, correlationID string, details []ErrorDetail) *Error {
	e := newError(CategoryValidationError, message, correlationID)
	e.Errors = details
	return e
}

// NewConflictError creates a 409 error with the CONFLICT category.
func NewConflictError(message, correlationID string) *Error {
	return newError(CategoryConflict, message, correlationID)
}

// FromError maps err to an HTTP status and envelope. Unrecognized errors are
// 500s with a generic message.
func FromError(err error, correlationID string) (int, *Error) {
	var (
		cfgErr  *domain.ConfigurationError
		concErr *domain.ConcurrencyError
		trErr   *domain.TransportError
		imgErr  *domain.ImageFetchError
		valErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, newError(CategoryConfigurationError, cfgErr.Message, correlationID)
	case errors.As(err, &concErr):
		return http.StatusConflict, NewConflictError(concErr.Message, correlationID)
	case errors.As(err, &trErr):
		return http.StatusBadGateway, newError(CategoryUpstreamError, trErr.Error(), correlationID)
	case errors.As(err, &imgErr):
		return http.StatusBadGateway, newError(CategoryUpstreamError, imgErr.Error(), correlationID)
	case errors.As(err, &valErrs):
		return http.StatusBadRequest, NewValidationError("Invalid input", correlationID, ValidationDetails(valErrs))
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, NewNotFoundError("Resource not found", correlationID)
	}
	return http.StatusInternalServerError, newError(CategoryInternalError, "Internal Server Error", correlationID)
}

// ValidationDetails converts validator failures into error details.
func ValidationDetails(errs validator.ValidationErrors) []ErrorDetail {
	out := make([]ErrorDetail, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ErrorDetail{
			Message: fe.Field() + " failed " + fe.Tag() + " validation",
			Code:    "INVALID_" + fe.Tag(),
			In:      fe.Field(),
		})
	}
	return out
}

// WriteError writes an Error as a JSON response with the given HTTP status code.
func WriteError(w http.ResponseWriter, statusCode int, apiErr *Error) {
	WriteJSON(w, statusCode, apiErr)
}

// WriteErr maps err with FromError and writes it.
func WriteErr(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := FromError(err, CorrelationID(r.Context()))
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	WriteError(w, status, apiErr)
}
