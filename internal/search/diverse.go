package search

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ Controller = (*DiverseController)(nil)

// DiverseConfig controls flat diverse decoding.
type DiverseConfig struct {
	// K is the number of independent candidates to generate per run.
	// The budget may cut a run short of K.
	K int `yaml:"k" json:"k" validate:"required,min=1,max=1000"`

	// MaxConcurrency bounds simultaneous generation calls.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"min=1,max=64"`

	// Params are the base sampling parameters; seed and temperature are
	// varied per candidate for diversity.
	Params domain.SamplingParams `yaml:"params" json:"params"`
}

// DefaultDiverseConfig returns production defaults for diverse decoding.
func DefaultDiverseConfig() DiverseConfig {
	return DiverseConfig{
		K:              5,
		MaxConcurrency: 5,
		Params:         domain.SamplingParams{Temperature: 0.8, TopP: 0.95, MaxTokens: 1024},
	}
}

// DiverseController generates K candidates independently with varied
// sampling parameters, verifies each, and returns the highest-scoring
// one. It holds no tree state and is the self-consistency baseline.
// It also serves as the candidate source for the adaptive sampler.
type DiverseController struct {
	config   DiverseConfig
	gen      ports.Generator
	verifier ports.Verifier
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewDiverseController creates a DiverseController, failing fast on
// invalid configuration.
func NewDiverseController(config DiverseConfig, gen ports.Generator, verifier ports.Verifier, logger *zap.Logger) (*DiverseController, error) {
	if gen == nil {
		return nil, fmt.Errorf("%s: generator cannot be nil", KindDiverse)
	}
	if verifier == nil {
		return nil, fmt.Errorf("%s: verifier cannot be nil", KindDiverse)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiverseController{
		config:   config,
		gen:      gen,
		verifier: verifier,
		logger:   logger,
		tracer:   otel.Tracer("diverse-controller"),
	}, nil
}

// Kind returns KindDiverse.
func (dc *DiverseController) Kind() string { return KindDiverse }

// Run generates up to K candidates within budget, verifies them, and
// returns the best by score (ties broken by earliest-created).
func (dc *DiverseController) Run(ctx context.Context, query string, budget Budget) (domain.Candidate, *Trace, error) {
	ctx, span := dc.tracer.Start(ctx, "DiverseController.Run",
		trace.WithAttributes(
			attribute.String("search.kind", KindDiverse),
			attribute.Int("search.k", dc.config.K),
			attribute.Int("search.budget", budget.MaxGenerations),
		),
	)
	defer span.End()

	tr := &Trace{Kind: KindDiverse}
	tracker := newBudgetTracker(budget)

	n := tracker.take(dc.config.K)
	if n < dc.config.K {
		tr.BudgetExhausted = true
	}

	batch, err := dc.NextBatch(ctx, query, n, 0, budget, &tr.Report)
	if err != nil {
		span.RecordError(err)
		return domain.Candidate{}, tr, err
	}
	tr.Candidates = batch

	best, ok := bestByScore(tr.Candidates)
	if !ok {
		err := fmt.Errorf("%s: %w", KindDiverse, domain.ErrNoCandidates)
		span.RecordError(err)
		return domain.Candidate{}, tr, err
	}

	span.SetAttributes(
		attribute.Int("search.candidates", len(tr.Candidates)),
		attribute.Float64("search.best_score", best.Score()),
	)
	return best, tr, nil
}

// NextBatch generates and verifies n candidates for query. The offset
// shifts the seed schedule so successive batches stay diverse. It is the
// incremental entry point the adaptive sampler drives.
func (dc *DiverseController) NextBatch(ctx context.Context, query string, n, offset int, budget Budget, report *domain.RunReport) ([]domain.Candidate, error) {
	if n <= 0 {
		return nil, nil
	}

	runner := newBatchRunner(dc.gen, dc.verifier, dc.config.MaxConcurrency, budget, dc.logger)

	reqs := make([]ports.GenerationRequest, n)
	for i := range reqs {
		reqs[i] = ports.GenerationRequest{
			Query:  query,
			Params: diverseParams(dc.config.Params, offset, i),
		}
	}

	candidates := runner.generate(ctx, reqs, report)
	if len(candidates) == 0 && n > 0 {
		return nil, fmt.Errorf("%s: all %d generation calls failed: %w", KindDiverse, n, domain.ErrNoCandidates)
	}

	vctx := ports.VerificationContext{Query: query}
	return runner.verify(ctx, candidates, vctx, report), nil
}
