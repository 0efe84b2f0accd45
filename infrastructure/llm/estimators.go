package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var (
	_ ports.DifficultyEstimator = (*DifficultyEstimator)(nil)
	_ ports.ConfidenceEstimator = (*ConfidenceEstimator)(nil)
)

const difficultyPrompt = `Classify how difficult the following question is to answer correctly.
Respond with JSON only: {"difficulty": "easy" | "medium" | "hard"}

Question:
%s`

const confidencePrompt = `Estimate the probability that the proposed answer below is correct.
Respond with JSON only: {"confidence": <number between 0.0 and 1.0>}

Question:
%s

Proposed answer:
%s`

// DifficultyEstimator classifies query difficulty with a single
// low-temperature LLM call. The adaptive sampler uses the result to
// choose its candidate bounds; callers treat estimation failure as
// medium difficulty.
type DifficultyEstimator struct {
	client ports.LLMClient
}

// NewDifficultyEstimator creates an estimator backed by the given
// client.
func NewDifficultyEstimator(client ports.LLMClient) (*DifficultyEstimator, error) {
	if client == nil {
		return nil, domain.NewConfigError("difficulty estimator", "client", "LLM client is required")
	}
	return &DifficultyEstimator{client: client}, nil
}

// EstimateDifficulty classifies the query as easy, medium, or hard.
func (e *DifficultyEstimator) EstimateDifficulty(ctx context.Context, query string) (domain.Difficulty, error) {
	response, err := e.client.Complete(ctx, fmt.Sprintf(difficultyPrompt, query), map[string]any{
		"temperature": 0.0,
		"max_tokens":  50,
	})
	if err != nil {
		return "", fmt.Errorf("difficulty estimation: %w", err)
	}

	var parsed struct {
		Difficulty string `json:"difficulty"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(response)), &parsed); err != nil {
		return "", fmt.Errorf("difficulty estimation: %w: %v", ports.ErrInvalidResponse, err)
	}

	difficulty := domain.Difficulty(strings.ToLower(strings.TrimSpace(parsed.Difficulty)))
	if !difficulty.Valid() {
		return "", fmt.Errorf("difficulty estimation: %w: unknown class %q", ports.ErrInvalidResponse, parsed.Difficulty)
	}
	return difficulty, nil
}

// ConfidenceEstimator scores answer confidence with a single
// low-temperature LLM call. It feeds the calibration gate and selective
// generation.
type ConfidenceEstimator struct {
	client ports.LLMClient
}

// NewConfidenceEstimator creates an estimator backed by the given
// client.
func NewConfidenceEstimator(client ports.LLMClient) (*ConfidenceEstimator, error) {
	if client == nil {
		return nil, domain.NewConfigError("confidence estimator", "client", "LLM client is required")
	}
	return &ConfidenceEstimator{client: client}, nil
}

// EstimateConfidence returns a confidence in [0, 1] for the candidate
// answering the query.
func (e *ConfidenceEstimator) EstimateConfidence(ctx context.Context, query string, candidate domain.Candidate) (float64, error) {
	prompt := fmt.Sprintf(confidencePrompt, query, candidate.Content)
	response, err := e.client.Complete(ctx, prompt, map[string]any{
		"temperature": 0.0,
		"max_tokens":  50,
	})
	if err != nil {
		return 0, fmt.Errorf("confidence estimation: %w", err)
	}

	var parsed struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(response)), &parsed); err != nil {
		return 0, fmt.Errorf("confidence estimation: %w: %v", ports.ErrInvalidResponse, err)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return 0, fmt.Errorf("confidence estimation: %w: confidence %.3f outside [0, 1]", ports.ErrInvalidResponse, parsed.Confidence)
	}
	return parsed.Confidence, nil
}

// extractJSONObject pulls the first JSON object out of a response that
// may wrap it in markdown fences or prose.
func extractJSONObject(response string) string {
	s := strings.TrimSpace(response)
	if after, found := strings.CutPrefix(s, "```json"); found {
		s = after
	} else if after, found := strings.CutPrefix(s, "```"); found {
		s = after
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
