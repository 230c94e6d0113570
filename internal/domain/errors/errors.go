// Package errors provides domain-specific error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeResourceBusy         = "RESOURCE_BUSY"
	ErrCodeConfigurationMissing = "CONFIGURATION_MISSING"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderRejected     = "PROVIDER_REJECTED"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, identifier string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    identifier,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewUnauthorizedError creates a new unauthorized error.
func NewUnauthorizedError(message string) *DomainError {
	return &DomainError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbiddenError creates a new forbidden error.
func NewForbiddenError(message string) *DomainError {
	return &DomainError{
		Code:       ErrCodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeInternal,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewBadRequestError creates a new bad request error.
func NewBadRequestError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeConflict,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusConflict,
	}
}

// NewResourceBusyError indicates another request currently holds the lock on
// the resource. Callers should retry later.
func NewResourceBusyError(resource string) *DomainError {
	return &DomainError{
		Code:       ErrCodeResourceBusy,
		Message:    fmt.Sprintf("%s is busy, try again later", resource),
		HTTPStatus: http.StatusConflict,
	}
}

// NewConfigurationMissingError indicates no usable model configuration could
// be resolved for the request. Client-correctable, never retried.
func NewConfigurationMissingError(details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeConfigurationMissing,
		Message:    "no usable model configuration",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRateLimitedError creates a new rate limited error.
func NewRateLimitedError(limit int) *DomainError {
	return &DomainError{
		Code:       ErrCodeRateLimited,
		Message:    "too many requests",
		Details:    fmt.Sprintf("limit: %d requests per minute", limit),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewProviderUnavailableError wraps a transient provider failure that
// persisted through the retry budget.
func NewProviderUnavailableError(provider string, err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeProviderUnavailable,
		Message:    fmt.Sprintf("%s is unavailable", provider),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewProviderRejectedError wraps a non-transient provider failure (quota,
// invalid request). Surfaced immediately, not retried.
func NewProviderRejectedError(provider string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeProviderRejected,
		Message:    fmt.Sprintf("%s rejected the request", provider),
		Details:    details,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewStoreUnavailableError indicates the key-value store is unreachable.
func NewStoreUnavailableError(err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeStoreUnavailable,
		Message:    "key-value store is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// IsDomainError checks if the error is a domain error.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeNotFound
}

// IsResourceBusy checks if the error is a resource busy error.
func IsResourceBusy(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeResourceBusy
}

// IsConfigurationMissing checks if the error is a configuration missing error.
func IsConfigurationMissing(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeConfigurationMissing
}
