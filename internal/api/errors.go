// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/soa"
	"github.com/soa-checker/backend/internal/storage"
	"go.uber.org/zap"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewUnknownDeviceError creates a 404 error for a device key the registry does not hold
func NewUnknownDeviceError(key string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "UNKNOWN_DEVICE",
		Message: fmt.Sprintf("unknown device: %s", key),
	}
}

// NewMalformedDocumentError creates a 400 error for a rule document that failed to load
func NewMalformedDocumentError(cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "MALFORMED_DOCUMENT",
		Message: "rule document rejected",
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewForbiddenError creates a 403 error for an operation disabled by configuration
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewJobFailedError creates a 422 error for a job that finished without a report
func NewJobFailedError(id, cause string) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    "JOB_FAILED",
		Message: fmt.Sprintf("job %s failed: %s", id, cause),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// mapDomainError translates the domain error kinds into API errors.
func mapDomainError(err error) *APIError {
	switch {
	case errors.Is(err, soa.ErrUnknownDevice):
		return &APIError{
			Status:  http.StatusNotFound,
			Code:    "UNKNOWN_DEVICE",
			Message: "unknown device",
			Details: err.Error(),
		}
	case errors.Is(err, soa.ErrDuplicateKey):
		return &APIError{
			Status:  http.StatusConflict,
			Code:    "CONFLICT",
			Message: "device key already loaded",
			Details: err.Error(),
		}
	case errors.Is(err, soa.ErrMalformedDocument), errors.Is(err, soa.ErrInvalidRule):
		return NewMalformedDocumentError(err)
	case errors.Is(err, soa.ErrMissingRequiredField), errors.Is(err, soa.ErrScenario):
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    "VALIDATION_ERROR",
			Message: "invalid test values",
			Details: err.Error(),
		}
	case errors.Is(err, soa.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return &APIError{
			Status:  http.StatusNotFound,
			Code:    "NOT_FOUND",
			Message: "resource not found",
			Details: err.Error(),
		}
	default:
		return NewInternalError("unexpected error", err)
	}
}

// ErrorHandler returns an echo.HTTPErrorHandler that renders every error as an APIError.
// Usage: e.HTTPErrorHandler = api.ErrorHandler(logger)
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = mapDomainError(err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err))
		}

		if err := c.JSON(apiErr.Status, apiErr); err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
