// Package llm provides the LLM provider boundary: a unified client for
// completion requests against OpenAI, Anthropic, and Google backends,
// with a middleware chain for retry, rate limiting, timeouts, metrics,
// and tracing.
//
// Providers implement the small CoreLLM interface; everything else is
// composed around it. The assembled client satisfies ports.LLMClient,
// which is what verifiers and generator adapters consume.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o-mini",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(10, 20),
//	        llm.RetryMiddleware(3, 500*time.Millisecond, 10*time.Second),
//	    },
//	})
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-quorum/internal/ports"
)

// CoreLLM is the minimal surface a provider must implement. Middleware
// wraps this interface, so every cross-cutting concern applies uniformly
// regardless of backend.
type CoreLLM interface {
	// DoRequest sends a prompt and returns the response text plus input
	// and output token counts. Options follow the keys documented on
	// ports.LLMClient ("temperature", "max_tokens", "top_p", "seed",
	// "system").
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the model identifier used for requests.
	GetModel() string
}

// Middleware wraps a CoreLLM to add behavior around every request.
// Middleware listed first in ClientConfig ends up outermost.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig configures provider construction and the middleware
// chain.
type ClientConfig struct {
	// APIKey authenticates against the provider.
	APIKey string

	// Model selects the model; empty picks the provider default.
	Model string

	// BaseURL overrides the provider endpoint, mainly for proxies and
	// test servers. Empty uses the provider default.
	BaseURL string

	// Timeout bounds each HTTP request at the transport level. Zero
	// means no transport timeout; per-call deadlines still apply via
	// context.
	Timeout time.Duration

	// Middleware is applied in order, first entry outermost.
	Middleware []Middleware
}

// providerFactory builds a CoreLLM from configuration.
type providerFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]providerFactory{}

// registerProvider is called from provider init functions.
func registerProvider(name string, factory providerFactory) {
	providerFactories[name] = factory
}

// Client assembles a provider and its middleware chain into a
// ports.LLMClient.
type Client struct {
	core CoreLLM
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient creates a client for the named provider ("openai",
// "anthropic", or "google") and wraps it in the configured middleware.
func NewClient(provider string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", provider, err)
	}

	// Reverse application so the first configured middleware observes
	// the request first.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core}, nil
}

// Complete sends a prompt and returns the response text, discarding
// token usage.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage sends a prompt and returns the response text along
// with input and output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// GetModel returns the model identifier of the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// estimateTokens approximates a token count when the provider response
// omits usage data. Roughly four characters per token for English text.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// tokenCount prefers the provider-reported count and falls back to an
// estimate from the text.
func tokenCount(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	return estimateTokens(text)
}
