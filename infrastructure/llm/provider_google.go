package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when no model is configured.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	registerProvider("google", newGoogleProvider)
}

// googleProvider implements CoreLLM against the Google Gemini API.
type googleProvider struct {
	client *genai.Client
	model  string
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Google client: %w", err)
	}

	return &googleProvider{client: client, model: model}, nil
}

// DoRequest sends a generate-content request and returns the response
// text with token usage. Gemini has no separate system role, so a system
// prompt is prepended to the user prompt.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := parseOptions(opts, p.model)

	finalPrompt := prompt
	if options.System != "" {
		finalPrompt = fmt.Sprintf("System: %s\n\nUser: %s", options.System, prompt)
	}
	contents := []*genai.Content{genai.NewContentFromText(finalPrompt, genai.RoleUser)}

	genConfig := &genai.GenerateContentConfig{}
	if options.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*options.Temperature))
	}
	if options.TopP != nil {
		genConfig.TopP = genai.Ptr(float32(*options.TopP))
	}
	if options.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(clampInt(options.MaxTokens, 1, math.MaxInt32))
	}
	if options.Seed != nil {
		genConfig.Seed = genai.Ptr(int32(clampInt(*options.Seed, math.MinInt32, math.MaxInt32)))
	}

	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, genConfig)
	if err != nil {
		return "", 0, 0, p.classify(err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	tokensIn := estimateTokens(prompt)
	tokensOut := estimateTokens(content)
	if usage := resp.UsageMetadata; usage != nil {
		if usage.PromptTokenCount > 0 {
			tokensIn = int(usage.PromptTokenCount)
		}
		if usage.CandidatesTokenCount > 0 {
			tokensOut = int(usage.CandidatesTokenCount)
		}
	}

	return content, tokensIn, tokensOut, nil
}

// GetModel returns the configured model name.
func (p *googleProvider) GetModel() string { return p.model }

func (p *googleProvider) classify(err error) error {
	if isContextError(err) {
		return classifyContext("google", err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		if isSafetyBlock(apiErr) {
			return &ProviderError{
				Provider:   "google",
				StatusCode: apiErr.Code,
				Message:    "request blocked by safety filters",
				Cause:      err,
			}
		}
		return classifyHTTP("google", apiErr.Code, message, err)
	}
	return &ProviderError{Provider: "google", Message: "request failed", Cause: err}
}

// isSafetyBlock reports whether the API error is a content-policy
// rejection, which must never be retried.
func isSafetyBlock(apiErr *googleapi.Error) bool {
	lower := strings.ToLower(apiErr.Message)
	if strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
