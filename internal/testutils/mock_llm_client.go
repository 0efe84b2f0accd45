// Package testutils provides deterministic test doubles for the
// generation, verification, and LLM boundaries.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-quorum/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)

// MockResponse is one pattern-to-response rule for the mock client.
type MockResponse struct {
	// Pattern is matched as a substring against prompts. Empty matches
	// everything and acts as the default.
	Pattern string

	// Response is the text returned for matching prompts.
	Response string

	// TokensUsed is reported as the output token count.
	TokensUsed int

	// Err, when set, is returned instead of the response.
	Err error
}

// MockLLMClient implements ports.LLMClient with deterministic,
// pattern-matched responses. Identical prompts always produce identical
// results, which keeps consensus and sampling tests stable.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	responses []MockResponse
	calls     int
}

// NewMockLLMClient creates a mock client with no configured responses;
// unmatched prompts return a generic answer.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{model: model}
}

// AddResponse appends a response rule. Rules are checked in insertion
// order and the first match wins.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
}

// Calls reports how many completion requests the client has served.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Complete returns the first configured response whose pattern matches
// the prompt.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := m.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage is Complete plus deterministic token counts.
func (m *MockLLMClient) CompleteWithUsage(ctx context.Context, prompt string, _ map[string]any) (string, int, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, 0, err
	}
	if prompt == "" {
		return "", 0, 0, fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if r.Pattern != "" && !strings.Contains(lower, strings.ToLower(r.Pattern)) {
			continue
		}
		if r.Err != nil {
			return "", 0, 0, r.Err
		}
		tokens := r.TokensUsed
		if tokens == 0 {
			tokens = len(r.Response) / 4
		}
		return r.Response, len(prompt) / 4, tokens, nil
	}

	return "mock response", len(prompt) / 4, 3, nil
}

// GetModel returns the mock model identifier.
func (m *MockLLMClient) GetModel() string { return m.model }
