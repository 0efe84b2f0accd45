package verifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var (
	_ ports.Verifier      = (*LLMJudgeVerifier)(nil)
	_ ports.BatchVerifier = (*LLMJudgeVerifier)(nil)
)

// Configuration constants for LLMJudgeVerifier.
const (
	DefaultJudgeMaxTokens      = 256
	DefaultJudgeTemperature    = 0.0
	DefaultJudgeMaxConcurrency = 5
)

// LLMJudgeConfig controls LLM-judged scoring.
type LLMJudgeConfig struct {
	// PromptTemplate is the Go template rendered into the scoring
	// prompt. It should use {{.Query}} and {{.Answer}} placeholders.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template" validate:"required,min=20"`

	// Temperature controls randomness in judging (0.0-1.0). Zero keeps
	// scoring consistent.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0.0,max=1.0"`

	// MaxTokens limits the judge's reasoning length.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"required,min=50,max=2000"`

	// MaxConcurrency bounds concurrent judge calls in batch mode.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"min=1,max=20"`

	// Retry is the boundary retry policy for transient judge failures.
	Retry RetryPolicy `yaml:"retry" json:"retry"`
}

// DefaultLLMJudgeConfig returns production defaults for LLM judging.
func DefaultLLMJudgeConfig() LLMJudgeConfig {
	return LLMJudgeConfig{
		PromptTemplate: "Score the following answer to the question on a scale from 0.0 to 1.0.\n\nQuestion: {{.Query}}\nAnswer: {{.Answer}}\n\nConsider accuracy, completeness, and clarity.",
		Temperature:    DefaultJudgeTemperature,
		MaxTokens:      DefaultJudgeMaxTokens,
		MaxConcurrency: DefaultJudgeMaxConcurrency,
		Retry:          DefaultRetryPolicy(),
	}
}

// judgeResponse is the JSON structure the judge must reply with.
type judgeResponse struct {
	// Score is the numeric score in [0, 1].
	Score float64 `json:"score" validate:"min=0.0,max=1.0"`

	// Pass is the judge's pass/fail call for the answer.
	Pass bool `json:"pass"`

	// Rationale explains the score.
	Rationale string `json:"rationale" validate:"required,min=10"`
}

// LLMJudgeVerifier scores candidates by rendering a scoring prompt,
// invoking the LLM boundary, and parsing a numeric score and rationale
// from the response. Transient failures are retried with exponential
// backoff; when all retries fail the verifier returns an error-flagged
// result with the worst score, never an error. Stateless and safe for
// concurrent use.
type LLMJudgeVerifier struct {
	name           string
	config         LLMJudgeConfig
	client         ports.LLMClient
	promptTemplate *template.Template
}

// NewLLMJudgeVerifier creates an LLMJudgeVerifier, compiling the prompt
// template and failing fast on invalid configuration.
func NewLLMJudgeVerifier(name string, client ports.LLMClient, config LLMJudgeConfig) (*LLMJudgeVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if client == nil {
		return nil, fmt.Errorf("verifier %s: LLM client cannot be nil", name)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	tmpl, err := template.New("judgePrompt").Parse(config.PromptTemplate)
	if err != nil {
		return nil, domain.NewConfigError("llm judge", "prompt_template", err.Error())
	}

	return &LLMJudgeVerifier{
		name:           name,
		config:         config,
		client:         client,
		promptTemplate: tmpl,
	}, nil
}

// Name returns the verifier's identifier.
func (jv *LLMJudgeVerifier) Name() string { return jv.name }

// ScoreRange declares the [0, 1] score contract.
func (jv *LLMJudgeVerifier) ScoreRange() (float64, float64) { return 0, 1 }

// SupportsStreaming is false: judging needs the complete answer.
func (jv *LLMJudgeVerifier) SupportsStreaming() bool { return false }

// Verify scores one candidate with the judge. Every failure path
// (template rendering, transport, parsing, out-of-range score) is
// converted to an error-flagged result.
func (jv *LLMJudgeVerifier) Verify(ctx context.Context, candidate domain.Candidate, vctx ports.VerificationContext) domain.VerificationResult {
	prompt, err := jv.buildPrompt(vctx.Query, candidate.Content)
	if err != nil {
		return domain.NewErrorResult(jv.name, err)
	}

	options := map[string]any{
		"temperature":     jv.config.Temperature,
		"max_tokens":      jv.config.MaxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}

	var response string
	err = jv.config.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		response, callErr = jv.client.Complete(ctx, prompt, options)
		return callErr
	})
	if err != nil {
		return domain.NewErrorResult(jv.name, fmt.Errorf("judge call failed: %w", err))
	}

	parsed, err := jv.parseResponse(response)
	if err != nil {
		return domain.NewErrorResult(jv.name, err)
	}

	return domain.VerificationResult{
		VerifierID: jv.name,
		Score:      parsed.Score,
		Pass:       parsed.Pass,
		Rationale:  parsed.Rationale,
	}
}

// VerifyBatch scores candidates concurrently up to the configured
// limit. Results are position-aligned with the input; each slot is
// independent, so one failed judgment never contaminates the rest.
func (jv *LLMJudgeVerifier) VerifyBatch(ctx context.Context, candidates []domain.Candidate, vctx ports.VerificationContext) []domain.VerificationResult {
	results := make([]domain.VerificationResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jv.config.MaxConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = jv.Verify(gctx, c, vctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// buildPrompt renders the scoring prompt with sanitized user content and
// appends the JSON format instruction.
func (jv *LLMJudgeVerifier) buildPrompt(query, answer string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Query  string
		Answer string
	}{
		Query:  sanitizeUserContent(query),
		Answer: sanitizeUserContent(answer),
	}
	if err := jv.promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute prompt template: %w", err)
	}
	prompt := buf.String() + "\n\nIMPORTANT: You must respond with valid JSON in exactly this format:\n" +
		`{"score": <0.0-1.0>, "pass": <true|false>, "rationale": "<detailed explanation>"}`
	return prompt, nil
}

// parseResponse extracts and validates the judge's JSON reply.
func (jv *LLMJudgeVerifier) parseResponse(response string) (*judgeResponse, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no valid JSON in judge response (len: %d)", len(response))
	}

	var parsed judgeResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("parse judge response: %w", err)
	}
	if err := validate.Struct(parsed); err != nil {
		return nil, fmt.Errorf("invalid judge response structure: %w", err)
	}
	if parsed.Score < 0 || parsed.Score > 1 {
		return nil, fmt.Errorf("judge score %.3f outside [0, 1]", parsed.Score)
	}
	return &parsed, nil
}
