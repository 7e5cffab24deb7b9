// Package errors provides unified error handling for the gateway.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Validation errors (3xxx)
	ErrCodeInvalidConfig    ErrorCode = "VAL_3001"
	ErrCodeInvalidInput     ErrorCode = "VAL_3002"
	ErrCodeMissingParameter ErrorCode = "VAL_3003"

	// Resource errors (4xxx)
	ErrCodeNotFound ErrorCode = "RES_4001"
	ErrCodeConflict ErrorCode = "RES_4002"

	// Service/upstream errors (5xxx)
	ErrCodeInternal    ErrorCode = "SVC_5001"
	ErrCodeBadGateway  ErrorCode = "SVC_5002"
	ErrCodeTimeout     ErrorCode = "SVC_5003"
	ErrCodeUnavailable ErrorCode = "SVC_5004"
)

// ServiceError represents a structured error with code, message, and HTTP status
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Configuration/validation errors

func InvalidConfig(reason string) *ServiceError {
	return New(ErrCodeInvalidConfig, "Invalid configuration", http.StatusInternalServerError).
		WithDetails("reason", reason)
}

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeInvalidInput, "Invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeMissingParameter, "Missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

// Resource errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "Resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Service/upstream errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// BadGateway wraps an upstream hard failure (network error, timeout, abort)
// that propagated out of a Pool.forward call.
func BadGateway(endpointID string, err error) *ServiceError {
	return Wrap(ErrCodeBadGateway, "Upstream request failed", http.StatusBadGateway, err).
		WithDetails("endpoint", endpointID)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

// Unavailable reports that no configured route could serve a request.
func Unavailable(reason string) *ServiceError {
	return New(ErrCodeUnavailable, "Service unavailable", http.StatusServiceUnavailable).
		WithDetails("reason", reason)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
