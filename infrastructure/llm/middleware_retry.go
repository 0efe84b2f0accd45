package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// retryLLM retries transient failures with exponential backoff.
type retryLLM struct {
	next        CoreLLM
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// RetryMiddleware retries failed requests up to maxAttempts times with
// exponential backoff and jitter. Only retryable failures (rate limits,
// server errors, timeouts) are retried; authentication and request
// errors surface immediately.
func RetryMiddleware(maxAttempts int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:        next,
			maxAttempts: maxAttempts,
			baseDelay:   baseDelay,
			maxDelay:    maxDelay,
		}
	}
}

// DoRequest executes the request, retrying transient failures until the
// attempt budget or the context runs out.
func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}
		lastErr = err

		if !isRetryableError(err) || ctx.Err() != nil {
			return "", 0, 0, err
		}
		if attempt == r.maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}

	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// backoff computes the delay before the next attempt: exponential with
// up to 25% jitter, capped at maxDelay.
func (r *retryLLM) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := r.baseDelay * (1 << uint(attempt)) // #nosec G115 -- attempt bounded above
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	// #nosec G404 -- jitter does not need a cryptographic source
	jitter := time.Duration(rand.Int64N(int64(delay)/4 + 1))
	return delay + jitter
}

// isRetryableError honors the IsRetryable method when the error chain
// carries one, defaulting to not retryable.
func isRetryableError(err error) bool {
	var retryable interface{ IsRetryable() bool }
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetModel returns the model name from the wrapped implementation.
func (r *retryLLM) GetModel() string { return r.next.GetModel() }
