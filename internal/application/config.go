// Package application wires the search controllers, consensus
// aggregator, adaptive sampler, and decision layers into the engine that
// callers and the CLI consume.
package application

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-quorum/internal/consensus"
	"github.com/ahrav/go-quorum/internal/decision"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/sampling"
	"github.com/ahrav/go-quorum/internal/search"
)

var validate = validator.New()

// BudgetConfig is the YAML form of a search budget.
type BudgetConfig struct {
	// MaxGenerations caps generation calls for one run.
	MaxGenerations int `yaml:"max_generations" json:"max_generations" validate:"required,min=1,max=10000"`

	// PerCallTimeoutSeconds bounds each generation and verification
	// call. Zero disables the per-call deadline.
	PerCallTimeoutSeconds int `yaml:"per_call_timeout_seconds" json:"per_call_timeout_seconds" validate:"min=0,max=3600"`
}

// EngineConfig is the complete, YAML-loadable configuration for an
// engine run. Zero-valued sections fall back to their package defaults.
type EngineConfig struct {
	// Controller selects the search strategy for RunSearch when the
	// caller does not name one.
	Controller string `yaml:"controller" json:"controller" validate:"required,oneof=diverse beam mcts"`

	// Budget caps the run.
	Budget BudgetConfig `yaml:"budget" json:"budget" validate:"required"`

	// Adaptive toggles the adaptive sampler for diverse search. When
	// false, diverse search generates a single fixed-size batch.
	Adaptive bool `yaml:"adaptive" json:"adaptive"`

	// Diverse configures the diverse decoding controller.
	Diverse search.DiverseConfig `yaml:"diverse" json:"diverse"`

	// Beam configures the beam search controller.
	Beam search.BeamConfig `yaml:"beam" json:"beam"`

	// MCTS configures the Monte Carlo tree search controller.
	MCTS search.MCTSConfig `yaml:"mcts" json:"mcts"`

	// Consensus configures the majority-vote aggregator.
	Consensus consensus.Config `yaml:"consensus" json:"consensus"`

	// Sampling is the difficulty-to-bounds table for adaptive sampling.
	Sampling sampling.Config `yaml:"sampling" json:"sampling"`

	// Gate configures the calibration gate.
	Gate decision.GateConfig `yaml:"gate" json:"gate"`

	// Selective configures the answer-or-abstain economics.
	Selective decision.SelectiveConfig `yaml:"selective" json:"selective"`

	// Uncertainty configures the uncertainty classifier.
	Uncertainty decision.UncertaintyConfig `yaml:"uncertainty" json:"uncertainty"`
}

// DefaultEngineConfig returns a runnable configuration: diverse decoding
// with adaptive sampling and the default decision thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Controller:  search.KindDiverse,
		Budget:      BudgetConfig{MaxGenerations: 50, PerCallTimeoutSeconds: 60},
		Adaptive:    true,
		Diverse:     search.DefaultDiverseConfig(),
		Beam:        search.DefaultBeamConfig(),
		MCTS:        search.DefaultMCTSConfig(),
		Consensus:   consensus.DefaultConfig(),
		Sampling:    sampling.DefaultConfig(),
		Gate:        decision.DefaultGateConfig(),
		Selective:   decision.DefaultSelectiveConfig(),
		Uncertainty: decision.DefaultUncertaintyConfig(),
	}
}

// LoadEngineConfig reads and validates an EngineConfig from a YAML file.
// Omitted sections take their defaults.
func LoadEngineConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied configuration
	if err != nil {
		return EngineConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseEngineConfig(data)
}

// ParseEngineConfig parses and validates an EngineConfig from YAML,
// layered over DefaultEngineConfig.
func ParseEngineConfig(data []byte) (EngineConfig, error) {
	config := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return EngineConfig{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return EngineConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return config, nil
}

// budget converts the YAML budget into a search.Budget.
func (c EngineConfig) budget() (search.Budget, error) {
	return search.NewBudget(c.Budget.MaxGenerations, time.Duration(c.Budget.PerCallTimeoutSeconds)*time.Second)
}
