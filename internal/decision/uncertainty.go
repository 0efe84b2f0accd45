package decision

import (
	"fmt"
	"sort"

	"github.com/ahrav/go-quorum/internal/domain"
)

// UncertaintyConfig controls the aleatoric/epistemic classification
// heuristics.
type UncertaintyConfig struct {
	// CertainMin is the confidence at or above which, combined with
	// consensus, a query is classified as certain.
	CertainMin float64 `yaml:"certain_min" json:"certain_min" validate:"min=0.0,max=1.0"`

	// AmbiguityMargin is the maximum gap between the top two vote
	// shares for the split to count as inherent ambiguity rather than
	// noise.
	AmbiguityMargin float64 `yaml:"ambiguity_margin" json:"ambiguity_margin" validate:"min=0.0,max=1.0"`

	// HighEpistemicMax is the confidence below which epistemic
	// uncertainty is treated as high (route to abstain rather than
	// suggesting a source).
	HighEpistemicMax float64 `yaml:"high_epistemic_max" json:"high_epistemic_max" validate:"min=0.0,max=1.0"`
}

// DefaultUncertaintyConfig returns the default classification bands.
func DefaultUncertaintyConfig() UncertaintyConfig {
	return UncertaintyConfig{
		CertainMin:       0.7,
		AmbiguityMargin:  0.15,
		HighEpistemicMax: 0.4,
	}
}

// UncertaintyClassifier distinguishes aleatoric uncertainty (inherent
// ambiguity: several well-supported answers) from epistemic uncertainty
// (missing knowledge: weak support everywhere) and recommends an action
// for each. It reads the consensus vote distribution rather than the
// raw text, so it needs no extra model calls.
type UncertaintyClassifier struct {
	config UncertaintyConfig
}

// NewUncertaintyClassifier creates an UncertaintyClassifier, failing
// fast on invalid configuration.
func NewUncertaintyClassifier(config UncertaintyConfig) (*UncertaintyClassifier, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return &UncertaintyClassifier{config: config}, nil
}

// Classify assesses a finished run. The action mapping is:
// aleatoric -> provide_options; epistemic high -> abstain; epistemic
// low -> suggest_source; certain -> answer_directly.
func (uc *UncertaintyClassifier) Classify(result domain.ConsensusResult, confidence float64) domain.UncertaintyAssessment {
	total := 0
	for _, n := range result.Votes {
		total += n
	}

	if total == 0 {
		return domain.UncertaintyAssessment{
			Kind:        domain.UncertaintyEpistemic,
			High:        true,
			Recommended: domain.ActionAbstain,
			Reasoning:   "no usable candidates: nothing is known about this query",
		}
	}

	top1, top2 := topTwoShares(result.Votes, total)

	// Two (or more) answers with comparable support is inherent
	// ambiguity: more samples would not collapse the split.
	if top2 > 0 && top1-top2 <= uc.config.AmbiguityMargin {
		return domain.UncertaintyAssessment{
			Kind:        domain.UncertaintyAleatoric,
			Recommended: domain.ActionProvideOptions,
			Reasoning: fmt.Sprintf("top answers split %.2f vs %.2f: multiple valid answers likely",
				top1, top2),
		}
	}

	if result.ConsensusReached && confidence >= uc.config.CertainMin {
		return domain.UncertaintyAssessment{
			Kind:        domain.UncertaintyNone,
			Recommended: domain.ActionAnswerDirectly,
			Reasoning: fmt.Sprintf("consensus with agreement %.2f and confidence %.2f",
				result.AgreementScore, confidence),
		}
	}

	// One answer dominates but weakly, or confidence is low: the model
	// is missing knowledge it could in principle have.
	high := confidence < uc.config.HighEpistemicMax
	recommended := domain.ActionSuggestSource
	if high {
		recommended = domain.ActionAbstain
	}
	return domain.UncertaintyAssessment{
		Kind:        domain.UncertaintyEpistemic,
		High:        high,
		Recommended: recommended,
		Reasoning: fmt.Sprintf("agreement %.2f, confidence %.2f: more information would resolve this",
			result.AgreementScore, confidence),
	}
}

// Arbitrate combines the calibration gate's routing with the
// uncertainty assessment. Epistemic abstention takes priority over a
// high raw confidence score; otherwise the gate's decision stands.
func Arbitrate(gate domain.CalibrationDecision, assessment domain.UncertaintyAssessment) domain.CalibrationDecision {
	if assessment.Kind == domain.UncertaintyEpistemic && assessment.Recommended == domain.ActionAbstain {
		return domain.CalibrationDecision{
			Confidence: gate.Confidence,
			Chosen:     domain.ActionAbstain,
			Reasoning:  "epistemic uncertainty overrides confidence routing: " + assessment.Reasoning,
		}
	}
	return gate
}

// topTwoShares returns the two largest vote shares in the distribution.
// The second share is 0 when only one group voted.
func topTwoShares(votes map[string]int, total int) (float64, float64) {
	counts := make([]int, 0, len(votes))
	for _, n := range votes {
		counts = append(counts, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	top1 := float64(counts[0]) / float64(total)
	top2 := 0.0
	if len(counts) > 1 {
		top2 = float64(counts[1]) / float64(total)
	}
	return top1, top2
}
