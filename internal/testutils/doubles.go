package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

// Compile-time interface checks for the boundary doubles.
var (
	_ ports.Generator           = (*ScriptedGenerator)(nil)
	_ ports.Verifier            = (*StaticVerifier)(nil)
	_ ports.DifficultyEstimator = (*FixedDifficulty)(nil)
	_ ports.ConfidenceEstimator = (*FixedConfidence)(nil)
)

// ScriptedGenerator returns canned contents in order, cycling when the
// script is shorter than the number of calls. An entry equal to FailMark
// produces a generation error instead.
type ScriptedGenerator struct {
	mu      sync.Mutex
	id      string
	script  []string
	calls   int
	partial bool
}

// FailMark in a script produces a generation failure at that position.
const FailMark = "\x00fail"

// NewScriptedGenerator creates a generator that replays script entries.
// When partial is true, candidates are marked incomplete unless their
// content ends with "!", mimicking stepwise tree generation.
func NewScriptedGenerator(id string, script []string, partial bool) *ScriptedGenerator {
	return &ScriptedGenerator{id: id, script: script, partial: partial}
}

// ID identifies the scripted backend.
func (g *ScriptedGenerator) ID() string { return g.id }

// Calls reports how many generation requests were served, including
// failures.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Generate returns the next scripted candidate.
func (g *ScriptedGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Candidate{}, ports.NewGenerationError(g.id, "generate", err)
	}

	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()

	content := g.script[n%len(g.script)]
	if content == FailMark {
		return domain.Candidate{}, ports.NewGenerationError(g.id, "generate", ports.ErrServiceUnavailable)
	}

	complete := true
	if g.partial {
		complete = len(content) > 0 && content[len(content)-1] == '!'
	}
	if req.Prefix != "" {
		content = req.Prefix + "\n" + content
	}

	return domain.Candidate{
		ID:       fmt.Sprintf("%s-%d", g.id, n),
		Content:  content,
		Complete: complete,
		Provenance: domain.Provenance{
			GeneratorID: g.id,
			Params:      req.Params,
			TokensUsed:  len(content) / 4,
		},
	}, nil
}

// StaticVerifier scores candidates from a content-to-score table.
// Unlisted contents get DefaultScore. Contents listed in Errors yield
// error-flagged results.
type StaticVerifier struct {
	// Scores maps exact candidate content to a score.
	Scores map[string]float64

	// Errors marks contents whose verification should error.
	Errors map[string]bool

	// DefaultScore applies to contents absent from Scores.
	DefaultScore float64

	// PassAt is the minimum passing score.
	PassAt float64
}

// Name identifies the static verifier.
func (v *StaticVerifier) Name() string { return "static" }

// ScoreRange declares the [0, 1] contract.
func (v *StaticVerifier) ScoreRange() (float64, float64) { return 0, 1 }

// SupportsStreaming is true; the table lookup needs no complete answer.
func (v *StaticVerifier) SupportsStreaming() bool { return true }

// Verify looks the candidate's content up in the score table.
func (v *StaticVerifier) Verify(_ context.Context, candidate domain.Candidate, _ ports.VerificationContext) domain.VerificationResult {
	if v.Errors[candidate.Content] {
		return domain.NewErrorResult("static", fmt.Errorf("scripted verification failure"))
	}
	score, ok := v.Scores[candidate.Content]
	if !ok {
		score = v.DefaultScore
	}
	return domain.VerificationResult{
		VerifierID: "static",
		Score:      score,
		Pass:       score >= v.PassAt,
		Rationale:  "static table lookup",
	}
}

// FixedDifficulty always reports the same difficulty. A non-nil Err is
// returned instead, for exercising estimator-failure fallbacks.
type FixedDifficulty struct {
	Level domain.Difficulty
	Err   error
}

// EstimateDifficulty returns the fixed level or the configured error.
func (f *FixedDifficulty) EstimateDifficulty(context.Context, string) (domain.Difficulty, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Level, nil
}

// FixedConfidence always reports the same confidence.
type FixedConfidence struct {
	Value float64
	Err   error
}

// EstimateConfidence returns the fixed value or the configured error.
func (f *FixedConfidence) EstimateConfidence(context.Context, string, domain.Candidate) (float64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Value, nil
}
