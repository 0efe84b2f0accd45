package decision

import (
	"fmt"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Selective-generation decision modes.
const (
	// ModeExpectedValue decides answer/abstain by expected value.
	ModeExpectedValue = "expected_value"

	// ModeThreshold bypasses the EV math and answers at or above a
	// fixed confidence threshold.
	ModeThreshold = "threshold"
)

// SelectiveConfig controls the answer/abstain economics.
type SelectiveConfig struct {
	// Mode selects expected-value or fixed-threshold deciding.
	Mode string `yaml:"mode" json:"mode" validate:"required,oneof=expected_value threshold"`

	// Reward is the payoff for a correct answer. Domain-configurable.
	Reward float64 `yaml:"reward" json:"reward" validate:"gt=0"`

	// Penalty is the cost of a wrong answer. Safety-critical domains
	// set this high (e.g. 10).
	Penalty float64 `yaml:"penalty" json:"penalty" validate:"gt=0"`

	// Threshold is the fixed answer cutoff used in threshold mode.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"min=0.0,max=1.0"`
}

// DefaultSelectiveConfig returns symmetric unit economics in
// expected-value mode.
func DefaultSelectiveConfig() SelectiveConfig {
	return SelectiveConfig{
		Mode:      ModeExpectedValue,
		Reward:    1.0,
		Penalty:   1.0,
		Threshold: 0.5,
	}
}

// SelectiveGenerator makes the answer/abstain decision. Abstaining
// always has expected value zero; answering pays reward when right and
// penalty when wrong, weighted by confidence. The decision requires
// strictly positive expected value: at EV = 0 the generator abstains.
type SelectiveGenerator struct {
	config SelectiveConfig
}

// NewSelectiveGenerator creates a SelectiveGenerator, failing fast on
// invalid configuration.
func NewSelectiveGenerator(config SelectiveConfig) (*SelectiveGenerator, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return &SelectiveGenerator{config: config}, nil
}

// Decide computes the answer/abstain decision for a confidence estimate.
func (sg *SelectiveGenerator) Decide(confidence float64) domain.EVDecision {
	if sg.config.Mode == ModeThreshold {
		chosen := domain.ActionAbstain
		if confidence >= sg.config.Threshold {
			chosen = domain.ActionDirect
		}
		return domain.EVDecision{
			Confidence: confidence,
			Chosen:     chosen,
			Reasoning: fmt.Sprintf("threshold mode: confidence %.2f vs cutoff %.2f",
				confidence, sg.config.Threshold),
		}
	}

	ev := confidence*sg.config.Reward - (1-confidence)*sg.config.Penalty
	chosen := domain.ActionAbstain
	if ev > 0 {
		chosen = domain.ActionDirect
	}
	return domain.EVDecision{
		Confidence: confidence,
		Chosen:     chosen,
		EVAnswer:   ev,
		EVAbstain:  0,
		Reasoning: fmt.Sprintf("EV(answer) = %.2f*%.2f - %.2f*%.2f = %.3f vs EV(abstain) = 0",
			confidence, sg.config.Reward, 1-confidence, sg.config.Penalty, ev),
	}
}
