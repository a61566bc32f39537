package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/position-dashboard/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryNetwork represents a failed price, RPC or protocol read. Recovered by the next poll.
	CategoryNetwork ErrorCategory = "network_failure"
	// CategoryParse represents a malformed external response. Same recovery as network.
	CategoryParse ErrorCategory = "parse_failure"
	// CategoryNoPosition is a valid empty state, not a fault
	CategoryNoPosition ErrorCategory = "no_position"
	// CategoryStale marks a fetch that resolved after being superseded
	CategoryStale ErrorCategory = "stale_result"
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// Sentinels matched with errors.Is through CategorizedError.Is
var (
	ErrNetworkFailure     = errors.New("network failure")
	ErrParseFailure       = errors.New("parse failure")
	ErrNoMatchingPosition = errors.New("no matching position")
	ErrStaleResult        = errors.New("stale result")
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Is matches the category sentinels
func (e *CategorizedError) Is(target error) bool {
	switch target {
	case ErrNetworkFailure:
		return e.Category == CategoryNetwork
	case ErrParseFailure:
		return e.Category == CategoryParse
	case ErrNoMatchingPosition:
		return e.Category == CategoryNoPosition
	case ErrStaleResult:
		return e.Category == CategoryStale
	}
	return false
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Upstream failures

// NewNetworkError creates a NetworkFailure for the named upstream
func NewNetworkError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNetwork,
		StatusCode: http.StatusBadGateway,
		Code:       "NETWORK_FAILURE",
		Message:    fmt.Sprintf("request to %s failed", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewParseError creates a ParseFailure for the named upstream
func NewParseError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryParse,
		StatusCode: http.StatusBadGateway,
		Code:       "PARSE_FAILURE",
		Message:    fmt.Sprintf("malformed response from %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewNoPositionError signals the wallet holds nothing in the tracked pair
func NewNoPositionError(side string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNoPosition,
		StatusCode: http.StatusOK,
		Code:       "NO_MATCHING_POSITION",
		Message:    fmt.Sprintf("no %s position: %s", side, reason),
		Details: map[string]interface{}{
			"side":   side,
			"reason": reason,
		},
	}
}

// NewStaleResultError marks a fetch superseded by a newer generation or sequence
func NewStaleResultError(generation, sequence uint64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStale,
		StatusCode: http.StatusConflict,
		Code:       "STALE_RESULT",
		Message:    "fetch result superseded",
		Details: map[string]interface{}{
			"generation": generation,
			"sequence":   sequence,
		},
	}
}

// User Input Errors (4xx)

// NewInvalidPublicKeyError creates an invalid wallet key error
func NewInvalidPublicKeyError(key string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PUBLIC_KEY",
		Message:    fmt.Sprintf("invalid public key: %s", key),
		Cause:      cause,
		Details: map[string]interface{}{
			"publicKey": key,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"limit": limit,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "INVALID_PUBLIC_KEY", "INVALID_PARAMETER":
		return &CategorizedError{
			Category:   CategoryUserInput,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "SESSION_NOT_FOUND", "NOT_FOUND":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the next poll tick may succeed where this attempt failed
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryNetwork, CategoryParse:
		return true
	default:
		return false
	}
}

// IsNoPosition reports whether err is the empty-state signal
func IsNoPosition(err error) bool {
	return errors.Is(err, ErrNoMatchingPosition)
}

// IsStale reports whether err marks a superseded fetch
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleResult)
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
