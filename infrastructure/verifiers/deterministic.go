package verifiers

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var (
	_ ports.Verifier      = (*DeterministicVerifier)(nil)
	_ ports.BatchVerifier = (*DeterministicVerifier)(nil)

	// foldCaser is a package-level Unicode case folder for performance.
	foldCaser = cases.Fold()

	// numberPattern extracts the first numeric token from answer text.
	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?`)
)

// Comparison modes for DeterministicVerifier.
const (
	// MatchExact compares normalized strings for equality.
	MatchExact = "exact"

	// MatchNumeric extracts a number from the candidate and compares it
	// to the ground truth within epsilon.
	MatchNumeric = "numeric"

	// MatchRegex treats the ground truth as a regular expression the
	// normalized answer must match.
	MatchRegex = "regex"

	// MatchFuzzy scores Levenshtein similarity against the ground
	// truth, passing at or above the configured threshold.
	MatchFuzzy = "fuzzy"
)

// DeterministicConfig controls answer extraction and comparison.
type DeterministicConfig struct {
	// Mode selects the comparison: exact, numeric, regex, or fuzzy.
	Mode string `yaml:"mode" json:"mode" validate:"required,oneof=exact numeric regex fuzzy"`

	// CaseSensitive disables Unicode case folding during normalization.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`

	// TrimWhitespace applies strings.TrimSpace before comparison.
	TrimWhitespace bool `yaml:"trim_whitespace" json:"trim_whitespace"`

	// ExtractPattern, when set, is a regular expression whose first
	// capture group extracts the answer from candidate content before
	// comparison (e.g. `answer:\s*(.+)`).
	ExtractPattern string `yaml:"extract_pattern" json:"extract_pattern"`

	// Epsilon is the absolute tolerance for numeric comparison.
	Epsilon float64 `yaml:"epsilon" json:"epsilon" validate:"min=0"`

	// FuzzyThreshold is the minimum similarity (0.0-1.0) for a fuzzy
	// match to pass.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" json:"fuzzy_threshold" validate:"min=0.0,max=1.0"`
}

// DefaultDeterministicConfig returns exact matching with trimming and
// case folding.
func DefaultDeterministicConfig() DeterministicConfig {
	return DeterministicConfig{
		Mode:           MatchExact,
		CaseSensitive:  false,
		TrimWhitespace: true,
		Epsilon:        1e-9,
		FuzzyThreshold: 0.8,
	}
}

// DeterministicVerifier extracts a normalized answer from candidate
// content and compares it to the ground truth. Exact, numeric, and regex
// modes return binary scores (1.0 match / 0.0 no match, no partial
// credit); fuzzy mode returns the Levenshtein similarity. Stateless and
// safe for concurrent use; no LLM cost.
type DeterministicVerifier struct {
	name    string
	config  DeterministicConfig
	extract *regexp.Regexp
	pattern *regexp.Regexp // compiled ground-truth regex for MatchRegex
}

// NewDeterministicVerifier creates a DeterministicVerifier, compiling
// any configured patterns and failing fast on invalid configuration.
// groundTruthPattern is required in regex mode and ignored otherwise.
func NewDeterministicVerifier(name string, config DeterministicConfig, groundTruthPattern string) (*DeterministicVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	v := &DeterministicVerifier{name: name, config: config}

	if config.ExtractPattern != "" {
		re, err := regexp.Compile(config.ExtractPattern)
		if err != nil {
			return nil, domain.NewConfigError("deterministic verifier", "extract_pattern", err.Error())
		}
		if re.NumSubexp() < 1 {
			return nil, domain.NewConfigError("deterministic verifier", "extract_pattern", "must contain a capture group")
		}
		v.extract = re
	}

	if config.Mode == MatchRegex {
		if groundTruthPattern == "" {
			return nil, domain.NewConfigError("deterministic verifier", "mode", "regex mode requires a ground truth pattern")
		}
		re, err := regexp.Compile(groundTruthPattern)
		if err != nil {
			return nil, domain.NewConfigError("deterministic verifier", "ground_truth", err.Error())
		}
		v.pattern = re
	}

	return v, nil
}

// Name returns the verifier's identifier.
func (dv *DeterministicVerifier) Name() string { return dv.name }

// ScoreRange declares the [0, 1] score contract.
func (dv *DeterministicVerifier) ScoreRange() (float64, float64) { return 0, 1 }

// SupportsStreaming is true: deterministic comparison is cheap enough to
// run against partial candidates.
func (dv *DeterministicVerifier) SupportsStreaming() bool { return true }

// Verify scores one candidate against the ground truth carried in the
// verification context. All failure modes (missing ground truth, no
// extractable number) are absorbed into the result.
func (dv *DeterministicVerifier) Verify(ctx context.Context, candidate domain.Candidate, vctx ports.VerificationContext) domain.VerificationResult {
	if err := ctx.Err(); err != nil {
		return domain.NewErrorResult(dv.name, err)
	}
	if vctx.GroundTruth == "" && dv.config.Mode != MatchRegex {
		return domain.NewErrorResult(dv.name, fmt.Errorf("ground truth required for %s matching", dv.config.Mode))
	}

	answer := dv.extractAnswer(candidate.Content)

	switch dv.config.Mode {
	case MatchNumeric:
		return dv.verifyNumeric(answer, vctx.GroundTruth)
	case MatchRegex:
		return dv.verifyRegex(answer)
	case MatchFuzzy:
		return dv.verifyFuzzy(answer, vctx.GroundTruth)
	default:
		return dv.verifyExact(answer, vctx.GroundTruth)
	}
}

// VerifyBatch scores candidates in order.
func (dv *DeterministicVerifier) VerifyBatch(ctx context.Context, candidates []domain.Candidate, vctx ports.VerificationContext) []domain.VerificationResult {
	results := make([]domain.VerificationResult, len(candidates))
	for i, c := range candidates {
		results[i] = dv.Verify(ctx, c, vctx)
	}
	return results
}

// extractAnswer pulls the answer out of candidate content using the
// extraction pattern when configured, then normalizes it.
func (dv *DeterministicVerifier) extractAnswer(content string) string {
	if dv.extract != nil {
		if m := dv.extract.FindStringSubmatch(content); m != nil {
			content = m[1]
		}
	}
	return dv.normalize(content)
}

// normalize applies whitespace trimming and Unicode case folding per
// configuration.
func (dv *DeterministicVerifier) normalize(s string) string {
	if dv.config.TrimWhitespace {
		s = strings.TrimSpace(s)
	}
	if !dv.config.CaseSensitive {
		s = foldCaser.String(s)
	}
	return s
}

func (dv *DeterministicVerifier) verifyExact(answer, truth string) domain.VerificationResult {
	if answer == dv.normalize(truth) {
		return domain.VerificationResult{
			VerifierID: dv.name, Score: 1.0, Pass: true, Rationale: "exact match",
		}
	}
	return domain.VerificationResult{
		VerifierID: dv.name, Score: 0.0, Pass: false, Rationale: "no exact match",
	}
}

func (dv *DeterministicVerifier) verifyNumeric(answer, truth string) domain.VerificationResult {
	got := numberPattern.FindString(answer)
	if got == "" {
		return domain.NewErrorResult(dv.name, fmt.Errorf("no numeric value in answer"))
	}
	gotVal, err := strconv.ParseFloat(got, 64)
	if err != nil {
		return domain.NewErrorResult(dv.name, fmt.Errorf("parse answer number: %w", err))
	}
	truthVal, err := strconv.ParseFloat(strings.TrimSpace(truth), 64)
	if err != nil {
		return domain.NewErrorResult(dv.name, fmt.Errorf("parse ground truth number: %w", err))
	}

	if math.Abs(gotVal-truthVal) <= dv.config.Epsilon {
		return domain.VerificationResult{
			VerifierID: dv.name, Score: 1.0, Pass: true,
			Rationale: fmt.Sprintf("%g within %g of %g", gotVal, dv.config.Epsilon, truthVal),
		}
	}
	return domain.VerificationResult{
		VerifierID: dv.name, Score: 0.0, Pass: false,
		Rationale: fmt.Sprintf("%g differs from %g by more than %g", gotVal, truthVal, dv.config.Epsilon),
	}
}

func (dv *DeterministicVerifier) verifyRegex(answer string) domain.VerificationResult {
	if dv.pattern.MatchString(answer) {
		return domain.VerificationResult{
			VerifierID: dv.name, Score: 1.0, Pass: true,
			Rationale: fmt.Sprintf("matches %s", dv.pattern),
		}
	}
	return domain.VerificationResult{
		VerifierID: dv.name, Score: 0.0, Pass: false,
		Rationale: fmt.Sprintf("does not match %s", dv.pattern),
	}
}

func (dv *DeterministicVerifier) verifyFuzzy(answer, truth string) domain.VerificationResult {
	truth = dv.normalize(truth)
	if answer == truth {
		return domain.VerificationResult{
			VerifierID: dv.name, Score: 1.0, Pass: true, Rationale: "exact match",
		}
	}

	maxLen := max(len([]rune(answer)), len([]rune(truth)))
	if maxLen == 0 {
		return domain.VerificationResult{
			VerifierID: dv.name, Score: 1.0, Pass: true, Rationale: "both empty",
		}
	}
	distance := levenshtein.ComputeDistance(answer, truth)
	similarity := 1.0 - float64(distance)/float64(maxLen)

	return domain.VerificationResult{
		VerifierID: dv.name,
		Score:      similarity,
		Pass:       similarity >= dv.config.FuzzyThreshold,
		Rationale: fmt.Sprintf("levenshtein similarity %.3f (threshold %.2f)",
			similarity, dv.config.FuzzyThreshold),
	}
}
