// Package decision turns a finished answer and a confidence estimate
// into the user-facing outcome: surface it, qualify it, or withhold it.
package decision

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// GateConfig defines the calibration gate's threshold bands and the
// actions chosen inside each band.
type GateConfig struct {
	// DirectMin is the confidence at or above which the answer is
	// surfaced directly.
	DirectMin float64 `yaml:"direct_min" json:"direct_min" validate:"min=0.0,max=1.0"`

	// QualifiedMin is the confidence at or above which (but below
	// DirectMin) the answer is surfaced with qualification.
	QualifiedMin float64 `yaml:"qualified_min" json:"qualified_min" validate:"min=0.0,max=1.0"`

	// QualifiedAction is the output mode for the middle band:
	// with_verification or with_citations.
	QualifiedAction domain.Action `yaml:"qualified_action" json:"qualified_action" validate:"required,oneof=with_verification with_citations"`

	// LowAction is the output mode below QualifiedMin: abstain or
	// escalate.
	LowAction domain.Action `yaml:"low_action" json:"low_action" validate:"required,oneof=abstain escalate"`
}

// DefaultGateConfig returns the default bands: >=0.7 direct, [0.4, 0.7)
// with verification, <0.4 abstain.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		DirectMin:       0.7,
		QualifiedMin:    0.4,
		QualifiedAction: domain.ActionWithVerification,
		LowAction:       domain.ActionAbstain,
	}
}

// CalibrationGate routes a finished answer to an output mode by
// confidence band. It is a pure routing function: the side effect is
// selecting an output transformation, never generating new content.
type CalibrationGate struct {
	config GateConfig
}

// NewCalibrationGate creates a CalibrationGate, failing fast when the
// bands are out of range or inverted.
func NewCalibrationGate(config GateConfig) (*CalibrationGate, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if config.QualifiedMin > config.DirectMin {
		return nil, domain.NewConfigError("calibration gate", "qualified_min",
			fmt.Sprintf("%.2f exceeds direct_min %.2f", config.QualifiedMin, config.DirectMin))
	}
	return &CalibrationGate{config: config}, nil
}

// Route maps a confidence to an output mode.
func (g *CalibrationGate) Route(confidence float64) domain.CalibrationDecision {
	switch {
	case confidence >= g.config.DirectMin:
		return domain.CalibrationDecision{
			Confidence: confidence,
			Chosen:     domain.ActionDirect,
			Reasoning:  fmt.Sprintf("confidence %.2f >= %.2f: answer directly", confidence, g.config.DirectMin),
		}
	case confidence >= g.config.QualifiedMin:
		return domain.CalibrationDecision{
			Confidence: confidence,
			Chosen:     g.config.QualifiedAction,
			Reasoning: fmt.Sprintf("confidence %.2f in [%.2f, %.2f): answer %s",
				confidence, g.config.QualifiedMin, g.config.DirectMin, g.config.QualifiedAction),
		}
	default:
		return domain.CalibrationDecision{
			Confidence: confidence,
			Chosen:     g.config.LowAction,
			Reasoning: fmt.Sprintf("confidence %.2f < %.2f: %s",
				confidence, g.config.QualifiedMin, g.config.LowAction),
		}
	}
}

// RouteConsensus routes a finished run. A run whose vote distribution is
// empty (every candidate errored out, or none were produced) is never
// routed to direct regardless of the stated confidence.
func (g *CalibrationGate) RouteConsensus(result domain.ConsensusResult, confidence float64) domain.CalibrationDecision {
	if len(result.Votes) == 0 || result.Selected == nil {
		return domain.CalibrationDecision{
			Confidence: confidence,
			Chosen:     g.config.LowAction,
			Reasoning:  "no usable candidates in run: " + string(g.config.LowAction),
		}
	}
	return g.Route(confidence)
}
