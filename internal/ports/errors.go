package ports

import (
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the service returned a response
	// the caller could not parse.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates that authentication with the
	// service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// GenerationError is the typed error the generation boundary returns.
// Controllers count these as partial batch failures rather than aborting
// the batch; the retry middleware consults IsRetryable.
type GenerationError struct {
	// GeneratorID identifies the backend that failed.
	GeneratorID string

	// Operation is the name of the operation that failed.
	Operation string

	// Err is the underlying error.
	Err error

	// RetryAfter indicates how long to wait before retrying, if the
	// provider said so.
	RetryAfter *time.Duration
}

// Error implements the error interface for GenerationError.
func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation error: generator=%s, operation=%s, err=%v", e.GeneratorID, e.Operation, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is transient and the call can be
// retried. Logic errors are not retryable.
func (e *GenerationError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewGenerationError creates a GenerationError with the given details.
func NewGenerationError(generatorID, operation string, err error) *GenerationError {
	return &GenerationError{GeneratorID: generatorID, Operation: operation, Err: err}
}

// AsGenerationError extracts a *GenerationError from err, if present.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	ok := errors.As(err, &genErr)
	return genErr, ok
}
