package search

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ Controller = (*BeamController)(nil)

// BeamConfig controls breadth-bounded tree search.
type BeamConfig struct {
	// BeamWidth is the maximum number of active paths kept per depth.
	BeamWidth int `yaml:"beam_width" json:"beam_width" validate:"required,min=1,max=100"`

	// BranchingFactor is the number of continuations generated per
	// active path at each depth.
	BranchingFactor int `yaml:"branching_factor" json:"branching_factor" validate:"required,min=1,max=50"`

	// MaxDepth bounds the tree depth.
	MaxDepth int `yaml:"max_depth" json:"max_depth" validate:"required,min=1,max=64"`

	// MaxConcurrency bounds simultaneous generation calls within one
	// expansion batch.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"min=1,max=64"`

	// Params are the base sampling parameters for continuations.
	Params domain.SamplingParams `yaml:"params" json:"params"`
}

// DefaultBeamConfig returns production defaults for beam search.
func DefaultBeamConfig() BeamConfig {
	return BeamConfig{
		BeamWidth:       3,
		BranchingFactor: 3,
		MaxDepth:        4,
		MaxConcurrency:  5,
		Params:          domain.SamplingParams{Temperature: 0.7, TopP: 0.95, MaxTokens: 512},
	}
}

// BeamController maintains up to BeamWidth active paths per depth,
// expands each into BranchingFactor continuations, verifies them, and
// prunes back to the top BeamWidth by score. The sort is stable, so
// equal scores keep earliest-created order. Tree state lives in an arena
// owned by the Run call.
type BeamController struct {
	config   BeamConfig
	gen      ports.Generator
	verifier ports.Verifier
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewBeamController creates a BeamController, failing fast on invalid
// configuration.
func NewBeamController(config BeamConfig, gen ports.Generator, verifier ports.Verifier, logger *zap.Logger) (*BeamController, error) {
	if gen == nil {
		return nil, fmt.Errorf("%s: generator cannot be nil", KindBeam)
	}
	if verifier == nil {
		return nil, fmt.Errorf("%s: verifier cannot be nil", KindBeam)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BeamController{
		config:   config,
		gen:      gen,
		verifier: verifier,
		logger:   logger,
		tracer:   otel.Tracer("beam-controller"),
	}, nil
}

// Kind returns KindBeam.
func (bc *BeamController) Kind() string { return KindBeam }

// Run performs depth-by-depth beam search until MaxDepth, path
// completion, or budget exhaustion, and returns the best complete path
// seen (falling back to the best partial when nothing completed).
func (bc *BeamController) Run(ctx context.Context, query string, budget Budget) (domain.Candidate, *Trace, error) {
	ctx, span := bc.tracer.Start(ctx, "BeamController.Run",
		trace.WithAttributes(
			attribute.String("search.kind", KindBeam),
			attribute.Int("search.beam_width", bc.config.BeamWidth),
			attribute.Int("search.branching_factor", bc.config.BranchingFactor),
			attribute.Int("search.max_depth", bc.config.MaxDepth),
			attribute.Int("search.budget", budget.MaxGenerations),
		),
	)
	defer span.End()

	tr := &Trace{Kind: KindBeam}
	tracker := newBudgetTracker(budget)
	runner := newBatchRunner(bc.gen, bc.verifier, bc.config.MaxConcurrency, budget, bc.logger)
	vctx := ports.VerificationContext{Query: query}

	tree := newArena()
	root := tree.addRoot(domain.Candidate{Content: ""})

	// Active beam: arena indices of the paths still being extended.
	active := []int{root}
	var completed []int

	for depth := 0; depth < bc.config.MaxDepth && len(active) > 0; depth++ {
		want := len(active) * bc.config.BranchingFactor
		granted := tracker.take(want)
		if granted == 0 {
			tr.BudgetExhausted = true
			break
		}

		// Build continuation requests round-robin over active paths so a
		// clipped budget still touches every path.
		reqs := make([]ports.GenerationRequest, 0, granted)
		parents := make([]int, 0, granted)
		for i := 0; i < granted; i++ {
			pathIdx := active[i%len(active)]
			reqs = append(reqs, ports.GenerationRequest{
				Query:  query,
				Prefix: tree.get(pathIdx).cand.Content,
				Params: diverseParams(bc.config.Params, depth*want, i),
			})
			parents = append(parents, pathIdx)
		}

		aligned := runner.generateAligned(ctx, reqs, &tr.Report)

		// Compact for verification, remembering each candidate's
		// request slot so it maps back to its parent path.
		generated := make([]domain.Candidate, 0, len(aligned))
		slots := make([]int, 0, len(aligned))
		for i, c := range aligned {
			if c != nil {
				generated = append(generated, *c)
				slots = append(slots, i)
			}
		}
		if len(generated) == 0 {
			bc.logger.Warn("beam expansion produced nothing",
				zap.Int("depth", depth),
				zap.Int("requested", granted))
			break
		}
		scored := runner.verify(ctx, generated, vctx, &tr.Report)

		next := make([]int, 0, len(scored))
		for i, c := range scored {
			id := tree.addChild(parents[slots[i]], c, c.Complete)
			if c.Complete {
				completed = append(completed, id)
				tr.Candidates = append(tr.Candidates, c)
			} else {
				next = append(next, id)
			}
		}

		// Prune: keep only the top BeamWidth active paths. Stable sort
		// preserves earliest-created order among equal scores.
		sort.SliceStable(next, func(a, b int) bool {
			return tree.get(next[a]).cand.Score() > tree.get(next[b]).cand.Score()
		})
		if len(next) > bc.config.BeamWidth {
			next = next[:bc.config.BeamWidth]
		}
		active = next

		if tracker.exhausted() {
			tr.BudgetExhausted = true
			break
		}
	}

	// Surviving partials still count as answers when nothing completed.
	if len(completed) == 0 {
		for _, id := range active {
			tr.Candidates = append(tr.Candidates, tree.get(id).cand)
		}
	}

	best, ok := bestByScore(tr.Candidates)
	if !ok {
		err := fmt.Errorf("%s: %w", KindBeam, domain.ErrNoCandidates)
		span.RecordError(err)
		return domain.Candidate{}, tr, err
	}

	span.SetAttributes(
		attribute.Int("search.nodes", tree.len()),
		attribute.Int("search.completed", len(completed)),
		attribute.Float64("search.best_score", best.Score()),
	)
	return best, tr, nil
}
