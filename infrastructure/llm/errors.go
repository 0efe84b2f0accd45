package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-quorum/internal/ports"
)

// Construction and response-shape errors.
var (
	// ErrEmptyAPIKey indicates a client was created without credentials.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")

	// ErrEmptyResponse indicates the provider returned no usable content.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// ProviderError normalizes provider-specific failures. Unwrap returns a
// ports sentinel (ports.ErrRateLimited, ports.ErrTimeout, and so on)
// when one applies, so callers outside this package can classify with
// errors.Is without importing provider SDKs.
type ProviderError struct {
	// Provider names the backend that produced the error.
	Provider string

	// StatusCode is the HTTP status from the provider, when known.
	StatusCode int

	// Message is the provider's error message.
	Message string

	// Sentinel is the ports-level classification, nil when the failure
	// fits no category.
	Sentinel error

	// Cause is the original SDK error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap exposes the sentinel classification and the original cause to
// errors.Is and errors.As.
func (e *ProviderError) Unwrap() []error {
	var chain []error
	if e.Sentinel != nil {
		chain = append(chain, e.Sentinel)
	}
	if e.Cause != nil {
		chain = append(chain, e.Cause)
	}
	return chain
}

// IsRetryable reports whether a request failing with this error should
// be retried. Rate limits, server-side failures, and timeouts are
// transient; authentication and request-shape errors are not.
func (e *ProviderError) IsRetryable() bool {
	switch e.Sentinel {
	case ports.ErrRateLimited, ports.ErrServiceUnavailable, ports.ErrTimeout:
		return true
	default:
		return false
	}
}

// classifyHTTP builds a ProviderError from an HTTP status code.
func classifyHTTP(provider string, statusCode int, message string, cause error) *ProviderError {
	var sentinel error
	switch {
	case statusCode == 401 || statusCode == 403:
		sentinel = ports.ErrAuthenticationFailed
	case statusCode == 429:
		sentinel = ports.ErrRateLimited
	case statusCode >= 500:
		sentinel = ports.ErrServiceUnavailable
	case statusCode == 408:
		sentinel = ports.ErrTimeout
	}
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Sentinel:   sentinel,
		Cause:      cause,
	}
}

// classifyContext builds a ProviderError for context cancellation and
// deadline expiry.
func classifyContext(provider string, cause error) *ProviderError {
	pe := &ProviderError{Provider: provider, Cause: cause}
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		pe.Message = "request deadline exceeded"
		pe.Sentinel = ports.ErrTimeout
	case errors.Is(cause, context.Canceled):
		pe.Message = "request canceled"
	}
	return pe
}

// isContextError reports whether err is cancellation or deadline expiry.
func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
