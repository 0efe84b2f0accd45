// Package verifiers provides the concrete Verifier implementations the
// search engine scores candidates with: deterministic matching,
// LLM-judged scoring, and tool/process-based checks.
package verifiers

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by verifier constructors.
var (
	// ErrEmptyVerifierName is returned when a verifier is created with
	// an empty name.
	ErrEmptyVerifierName = errors.New("verifier name cannot be empty")
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// RetryPolicy encapsulates retry-with-backoff for calls to external
// boundaries, independent of any search or consensus logic. The zero
// value retries nothing; use DefaultRetryPolicy for sensible defaults.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"min=0,max=10"`

	// BaseDelay is the delay before the first retry; subsequent delays
	// grow exponentially.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// JitterPercent adds a random fraction of the delay to avoid
	// thundering herds. Between 0.0 and 1.0.
	JitterPercent float64 `yaml:"jitter_percent" json:"jitter_percent" validate:"min=0.0,max=1.0"`
}

// DefaultRetryPolicy returns the standard boundary retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		JitterPercent: 0.1,
	}
}

// Do runs op, retrying transient failures with exponential backoff until
// the attempt budget or the context expires.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == p.MaxAttempts || !isRetryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return lastErr
}

// delay computes the backoff for an attempt, with jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<attempt)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := int64(float64(delay) * p.JitterPercent)
	if jitter > 0 {
		//nolint:gosec // G404: math/rand is acceptable for retry jitter timing.
		delay += time.Duration(rand.Int64N(2*jitter) - jitter)
	}
	if delay < p.BaseDelay {
		return p.BaseDelay
	}
	return delay
}

// isRetryable reports whether an error looks transient. Typed boundary
// errors advertise retryability; anything else is matched against the
// usual transient failure strings.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	type retryable interface{ IsRetryable() bool }
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"rate limit", "too many requests", "timeout", "connection refused",
		"connection reset", "temporary failure", "service unavailable",
		"internal server error", "bad gateway", "gateway timeout", "network",
	}
	for _, pattern := range patterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// extractJSON pulls a JSON object out of a response that may wrap it in
// markdown code fences or surrounding prose. Returns "" when no object
// is found.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```json") {
		start := strings.Index(response, "```json") + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if strings.Contains(response, "```") {
		start := strings.Index(response, "```") + 3
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	braceCount := 0
	inString := false
	escapeNext := false
	for i := start; i < len(response); i++ {
		char := response[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return response[start : i+1]
				}
			}
		}
	}
	return ""
}

// sanitizeUserContent wraps user-provided content in code fences and
// escapes existing fence delimiters so it cannot break out of its
// designated prompt area.
func sanitizeUserContent(content string) string {
	content = strings.ReplaceAll(content, "```", "'''")
	return "```\n" + content + "\n```\n"
}
