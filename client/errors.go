package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a package or repository is not found.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamDown is returned when a host's circuit breaker is open.
	ErrUpstreamDown = errors.New("upstream unavailable")
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound returns true if the error represents a 404 response.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

// Retryable reports whether repeating the request could succeed.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	Source string
	Name   string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s: %s", e.Source, e.Name, e.Reason)
	}
	return fmt.Sprintf("%s: %s not found", e.Source, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitError is returned when the upstream rate limits requests.
type RateLimitError struct {
	URL        string
	RetryAfter int // seconds
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s, retry after %d seconds", e.URL, e.RetryAfter)
}
