package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
)

func newClassifier(t *testing.T) *UncertaintyClassifier {
	t.Helper()
	uc, err := NewUncertaintyClassifier(DefaultUncertaintyConfig())
	require.NoError(t, err)
	return uc
}

func consensusOf(votes map[string]int, agreement float64, reached bool) domain.ConsensusResult {
	selected := domain.Candidate{ID: "c1", Content: "A"}
	return domain.ConsensusResult{
		Selected:         &selected,
		Votes:            votes,
		AgreementScore:   agreement,
		ConsensusReached: reached,
	}
}

func TestNewUncertaintyClassifier_Validation(t *testing.T) {
	_, err := NewUncertaintyClassifier(UncertaintyConfig{CertainMin: 1.5})
	assert.Error(t, err, "out-of-range band must fail construction")
}

func TestUncertaintyClassifier_EvenSplitIsAleatoric(t *testing.T) {
	uc := newClassifier(t)

	// 4 vs 4: more samples would not collapse this.
	assessment := uc.Classify(consensusOf(map[string]int{"a": 4, "b": 4}, 0.5, false), 0.5)

	assert.Equal(t, domain.UncertaintyAleatoric, assessment.Kind, "even split is inherent ambiguity")
	assert.Equal(t, domain.ActionProvideOptions, assessment.Recommended, "ambiguity should surface the options")
}

func TestUncertaintyClassifier_NearSplitWithinMarginIsAleatoric(t *testing.T) {
	uc := newClassifier(t)

	// 5 vs 4 of 10: shares 0.5 and 0.4, gap 0.1 within the 0.15 margin.
	assessment := uc.Classify(consensusOf(map[string]int{"a": 5, "b": 4, "c": 1}, 0.5, true), 0.8)

	assert.Equal(t, domain.UncertaintyAleatoric, assessment.Kind, "near split within margin is ambiguity")
}

func TestUncertaintyClassifier_ZeroVotesIsHighEpistemic(t *testing.T) {
	uc := newClassifier(t)

	assessment := uc.Classify(domain.ConsensusResult{Votes: map[string]int{}}, 0.9)

	assert.Equal(t, domain.UncertaintyEpistemic, assessment.Kind, "no candidates means missing knowledge")
	assert.True(t, assessment.High, "nothing known is maximal epistemic uncertainty")
	assert.Equal(t, domain.ActionAbstain, assessment.Recommended, "should abstain")
}

func TestUncertaintyClassifier_WeakDominanceLowConfidence(t *testing.T) {
	uc := newClassifier(t)

	// One answer clearly ahead but confidence under the high-epistemic
	// cutoff of 0.4.
	assessment := uc.Classify(consensusOf(map[string]int{"a": 6, "b": 2, "c": 2}, 0.6, true), 0.3)

	assert.Equal(t, domain.UncertaintyEpistemic, assessment.Kind, "weak support is missing knowledge")
	assert.True(t, assessment.High, "confidence below the cutoff is high epistemic")
	assert.Equal(t, domain.ActionAbstain, assessment.Recommended, "high epistemic abstains")
}

func TestUncertaintyClassifier_WeakDominanceModerateConfidence(t *testing.T) {
	uc := newClassifier(t)

	assessment := uc.Classify(consensusOf(map[string]int{"a": 6, "b": 2, "c": 2}, 0.6, false), 0.55)

	assert.Equal(t, domain.UncertaintyEpistemic, assessment.Kind, "kind mismatch")
	assert.False(t, assessment.High, "moderate confidence is low epistemic")
	assert.Equal(t, domain.ActionSuggestSource, assessment.Recommended, "low epistemic points at a source")
}

func TestUncertaintyClassifier_ConsensusAndConfidenceIsCertain(t *testing.T) {
	uc := newClassifier(t)

	assessment := uc.Classify(consensusOf(map[string]int{"a": 9, "b": 1}, 0.9, true), 0.85)

	assert.Equal(t, domain.UncertaintyNone, assessment.Kind, "strong agreement plus confidence is certain")
	assert.Equal(t, domain.ActionAnswerDirectly, assessment.Recommended, "certain queries answer directly")
}

func TestUncertaintyClassifier_UnanimousSingleGroup(t *testing.T) {
	uc := newClassifier(t)

	assessment := uc.Classify(consensusOf(map[string]int{"a": 5}, 1.0, true), 0.9)

	assert.Equal(t, domain.UncertaintyNone, assessment.Kind,
		"a single voting group must not be mistaken for a split")
}

func TestArbitrate(t *testing.T) {
	direct := domain.CalibrationDecision{Confidence: 0.8, Chosen: domain.ActionDirect, Reasoning: "confident"}

	t.Run("epistemic abstention overrides the gate", func(t *testing.T) {
		out := Arbitrate(direct, domain.UncertaintyAssessment{
			Kind:        domain.UncertaintyEpistemic,
			High:        true,
			Recommended: domain.ActionAbstain,
			Reasoning:   "nothing is known",
		})
		assert.Equal(t, domain.ActionAbstain, out.Chosen, "epistemic abstention must win")
		assert.Equal(t, 0.8, out.Confidence, "original confidence is preserved for the audit trail")
	})

	t.Run("aleatoric assessment leaves the gate alone", func(t *testing.T) {
		out := Arbitrate(direct, domain.UncertaintyAssessment{
			Kind:        domain.UncertaintyAleatoric,
			Recommended: domain.ActionProvideOptions,
		})
		assert.Equal(t, domain.ActionDirect, out.Chosen, "only epistemic abstention overrides")
	})

	t.Run("low epistemic leaves the gate alone", func(t *testing.T) {
		out := Arbitrate(direct, domain.UncertaintyAssessment{
			Kind:        domain.UncertaintyEpistemic,
			Recommended: domain.ActionSuggestSource,
		})
		assert.Equal(t, domain.ActionDirect, out.Chosen, "suggest_source does not override")
	})
}
