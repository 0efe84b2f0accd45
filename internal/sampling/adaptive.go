// Package sampling implements adaptive self-consistency: a dynamically
// sized, early-stopping variant of multi-sample voting that spends more
// generation on hard queries and stops as soon as agreement is credible.
package sampling

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ahrav/go-quorum/internal/consensus"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
	"github.com/ahrav/go-quorum/internal/search"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// CandidateSource produces verified candidates in batches. The diverse
// decoding controller is the canonical implementation.
type CandidateSource interface {
	// NextBatch generates and verifies n candidates for query. The
	// offset shifts the sampling-seed schedule across batches; the
	// report accumulates boundary-call accounting.
	NextBatch(ctx context.Context, query string, n, offset int, budget search.Budget, report *domain.RunReport) ([]domain.Candidate, error)
}

// Bounds are the per-difficulty sampling limits.
type Bounds struct {
	// InitialN is the size of the first batch and the floor below which
	// the run never stops.
	InitialN int `yaml:"initial_n" json:"initial_n" validate:"required,min=1"`

	// MaxN is the hard cap on candidates generated in one run.
	MaxN int `yaml:"max_n" json:"max_n" validate:"required,min=1"`

	// BatchSize is the increment used after the initial batch.
	BatchSize int `yaml:"batch_size" json:"batch_size" validate:"required,min=1"`
}

// Config maps difficulty levels to sampling bounds.
type Config struct {
	// Easy, Medium, and Hard are the N-bound rows of the difficulty
	// table.
	Easy   Bounds `yaml:"easy" json:"easy" validate:"required"`
	Medium Bounds `yaml:"medium" json:"medium" validate:"required"`
	Hard   Bounds `yaml:"hard" json:"hard" validate:"required"`
}

// DefaultConfig returns the default difficulty table:
// easy 3/5/3, medium 5/10/3, hard 10/20/5.
func DefaultConfig() Config {
	return Config{
		Easy:   Bounds{InitialN: 3, MaxN: 5, BatchSize: 3},
		Medium: Bounds{InitialN: 5, MaxN: 10, BatchSize: 3},
		Hard:   Bounds{InitialN: 10, MaxN: 20, BatchSize: 5},
	}
}

// bounds returns the row for a difficulty level.
func (c Config) bounds(d domain.Difficulty) Bounds {
	switch d {
	case domain.DifficultyEasy:
		return c.Easy
	case domain.DifficultyHard:
		return c.Hard
	default:
		return c.Medium
	}
}

// AdaptiveSampler drives a candidate source in batches, checking
// consensus after each complete batch, and stops early when agreement
// reaches the aggregator's threshold with at least the minimum number
// of candidates generated.
type AdaptiveSampler struct {
	config     Config
	source     CandidateSource
	aggregator *consensus.MajorityVote
	difficulty ports.DifficultyEstimator
	logger     *zap.Logger
}

// NewAdaptiveSampler creates an AdaptiveSampler. Configuration is
// validated eagerly: every row must satisfy InitialN <= MaxN.
func NewAdaptiveSampler(
	config Config,
	source CandidateSource,
	aggregator *consensus.MajorityVote,
	difficulty ports.DifficultyEstimator,
	logger *zap.Logger,
) (*AdaptiveSampler, error) {
	if source == nil {
		return nil, fmt.Errorf("adaptive sampler: candidate source cannot be nil")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("adaptive sampler: aggregator cannot be nil")
	}
	if difficulty == nil {
		return nil, fmt.Errorf("adaptive sampler: difficulty estimator cannot be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	for name, b := range map[string]Bounds{"easy": config.Easy, "medium": config.Medium, "hard": config.Hard} {
		if b.InitialN > b.MaxN {
			return nil, domain.NewConfigError("adaptive sampler", name,
				fmt.Sprintf("initial_n %d exceeds max_n %d", b.InitialN, b.MaxN))
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdaptiveSampler{
		config:     config,
		source:     source,
		aggregator: aggregator,
		difficulty: difficulty,
		logger:     logger,
	}, nil
}

// Run executes one adaptive sampling run for query. The returned
// SamplingState records the run history; ActualN never exceeds MaxN for
// the estimated difficulty, and never exceeds budget.MaxGenerations
// (the budget may stop a run below InitialN).
//
// Each batch is processed atomically: consensus is computed only after
// the whole batch has been generated and verified, and once a stop
// decision is made no new batch is started.
func (as *AdaptiveSampler) Run(ctx context.Context, query string, budget search.Budget) (domain.ConsensusResult, *domain.SamplingState, error) {
	difficulty, err := as.difficulty.EstimateDifficulty(ctx, query)
	if err != nil {
		// A failed estimate is not fatal; medium is the safe middle.
		as.logger.Warn("difficulty estimation failed, assuming medium", zap.Error(err))
		difficulty = domain.DifficultyMedium
	}
	b := as.config.bounds(difficulty)

	state := &domain.SamplingState{
		MinCandidates: b.InitialN,
		MaxCandidates: b.MaxN,
		BatchSize:     b.BatchSize,
	}

	var (
		candidates []domain.Candidate
		result     domain.ConsensusResult
	)

	next := b.InitialN
	remaining := budget.MaxGenerations
	for {
		if next > remaining {
			next = remaining
		}
		batch, err := as.source.NextBatch(ctx, query, next, len(candidates), budget, &state.Report)
		if err != nil {
			return domain.ConsensusResult{}, state, fmt.Errorf("adaptive sampler: batch failed: %w", err)
		}
		remaining -= next
		candidates = append(candidates, batch...)
		state.ActualN = len(candidates)

		result = as.aggregator.Aggregate(candidates)
		state.AgreementHistory = append(state.AgreementHistory, result.AgreementScore)

		as.logger.Debug("batch aggregated",
			zap.String("difficulty", string(difficulty)),
			zap.Int("actual_n", state.ActualN),
			zap.Float64("agreement", result.AgreementScore),
			zap.Bool("consensus", result.ConsensusReached))

		// Never stop below the minimum, even on spuriously perfect
		// agreement from a tiny sample.
		if result.ConsensusReached && state.ActualN >= state.MinCandidates {
			state.EarlyStopped = state.ActualN < state.MaxCandidates
			state.Reason = domain.StopConsensus
			break
		}
		if state.ActualN >= state.MaxCandidates {
			state.EarlyStopped = false
			state.Reason = domain.StopMaxReached
			break
		}
		if remaining <= 0 {
			state.EarlyStopped = false
			state.Reason = domain.StopBudget
			break
		}

		next = b.BatchSize
		if toMax := state.MaxCandidates - state.ActualN; next > toMax {
			next = toMax
		}
	}

	return result, state, nil
}
