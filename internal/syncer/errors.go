package syncer

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates the requested upstream resource does not exist.
	ErrNotFound = errors.New("syncer: upstream resource not found")

	// ErrUpstreamDown indicates the circuit breaker is refusing upstream calls.
	ErrUpstreamDown = errors.New("syncer: upstream unavailable")
)

// RateLimitError represents an exhausted upstream quota.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("syncer: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// APIError represents an upstream API error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("syncer: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401
	}
	return false
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	return IsNotFound(err) || IsUnauthorized(err)
}
