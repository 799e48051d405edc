package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Business logic errors
	ErrCodeInsufficientLiquidity ErrorCode = "INSUFFICIENT_LIQUIDITY"
	ErrCodeInsufficientShares    ErrorCode = "INSUFFICIENT_SHARES"
	ErrCodeLedgerNotFound        ErrorCode = "LEDGER_NOT_FOUND"
	ErrCodeDistributionNotFound  ErrorCode = "DISTRIBUTION_NOT_FOUND"
	ErrCodePositionNotFound      ErrorCode = "POSITION_NOT_FOUND"
	ErrCodeVersionConflict       ErrorCode = "VERSION_CONFLICT"
	ErrCodeDuplicateEntry        ErrorCode = "DUPLICATE_ENTRY"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// System errors
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// PoolError represents a standardized application error
type PoolError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// New creates a new PoolError
func New(code ErrorCode, message string) *PoolError {
	return &PoolError{
		Code:       code,
		Message:    message,
		StatusCode: getHTTPStatusCode(code),
	}
}

// Wrap wraps an existing error with a PoolError
func Wrap(err error, code ErrorCode, message string) *PoolError {
	e := New(code, message)
	e.Details = map[string]interface{}{"original_error": err.Error()}
	return e
}

// AddDetail adds a detail to the error
func (e *PoolError) AddDetail(key string, value interface{}) *PoolError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AsPoolError extracts a *PoolError from an error chain
func AsPoolError(err error) (*PoolError, bool) {
	var pe *PoolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code ErrorCode) bool {
	if pe, ok := AsPoolError(err); ok {
		return pe.Code == code
	}
	return false
}

// getHTTPStatusCode maps error codes to HTTP status codes
func getHTTPStatusCode(code ErrorCode) int {
	switch code {
	case ErrCodeValidation, ErrCodeInvalidInput, ErrCodeMissingField:
		return http.StatusBadRequest
	case ErrCodeLedgerNotFound, ErrCodeDistributionNotFound, ErrCodePositionNotFound:
		return http.StatusNotFound
	case ErrCodeInsufficientLiquidity, ErrCodeInsufficientShares:
		return http.StatusUnprocessableEntity
	case ErrCodeVersionConflict, ErrCodeDuplicateEntry:
		return http.StatusConflict
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors

func ValidationError(message string) *PoolError {
	return New(ErrCodeValidation, message)
}

func LedgerNotFound(pool string) *PoolError {
	return New(ErrCodeLedgerNotFound, fmt.Sprintf("no ledger found for pool %s", pool)).
		AddDetail("pool", pool)
}

func DistributionNotFound(positionID string) *PoolError {
	return New(ErrCodeDistributionNotFound, fmt.Sprintf("no distribution found for position %s", positionID)).
		AddDetail("position_id", positionID)
}

func InsufficientLiquidity(message string) *PoolError {
	return New(ErrCodeInsufficientLiquidity, message)
}

func InsufficientShares(message string) *PoolError {
	return New(ErrCodeInsufficientShares, message)
}

func VersionConflict(pool string) *PoolError {
	return New(ErrCodeVersionConflict, fmt.Sprintf("ledger for pool %s was modified concurrently", pool)).
		AddDetail("pool", pool)
}

func Unauthorized(message string) *PoolError {
	return New(ErrCodeUnauthorized, message)
}

func Internal(message string) *PoolError {
	return New(ErrCodeInternal, message)
}
