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

var _ Controller = (*MCTSController)(nil)

// MCTSConfig controls Monte-Carlo tree search.
type MCTSConfig struct {
	// Simulations is the number of selection/expansion/simulation/
	// backpropagation cycles to run. The generation budget may cut a
	// run short.
	Simulations int `yaml:"simulations" json:"simulations" validate:"required,min=1,max=10000"`

	// ExplorationC is the UCB1 exploration constant.
	ExplorationC float64 `yaml:"exploration_c" json:"exploration_c" validate:"min=0"`

	// ChildrenPerExpand is how many children expansion generates for a
	// selected leaf.
	ChildrenPerExpand int `yaml:"children_per_expand" json:"children_per_expand" validate:"required,min=1,max=20"`

	// MaxDepth bounds the tree depth; nodes at MaxDepth are treated as
	// terminal for expansion purposes.
	MaxDepth int `yaml:"max_depth" json:"max_depth" validate:"required,min=1,max=64"`

	// MaxConcurrency bounds simultaneous generation calls within one
	// expansion batch.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" validate:"min=1,max=64"`

	// Params are the base sampling parameters for expansions and
	// rollouts.
	Params domain.SamplingParams `yaml:"params" json:"params"`
}

// DefaultMCTSConfig returns production defaults for MCTS.
func DefaultMCTSConfig() MCTSConfig {
	return MCTSConfig{
		Simulations:       16,
		ExplorationC:      1.41421356, // sqrt(2), the conventional UCT constant
		ChildrenPerExpand: 3,
		MaxDepth:          4,
		MaxConcurrency:    5,
		Params:            domain.SamplingParams{Temperature: 0.8, TopP: 0.95, MaxTokens: 512},
	}
}

// MCTSController runs the four-phase MCTS loop: selection walks the tree
// by UCB1 (unvisited children first, insertion order among ties),
// expansion generates children through the generation boundary,
// simulation rolls out to a terminal candidate and verifies it, and
// backpropagation adds the value to every ancestor. The arena is owned
// by the single goroutine driving one Run.
type MCTSController struct {
	config   MCTSConfig
	gen      ports.Generator
	verifier ports.Verifier
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewMCTSController creates an MCTSController, failing fast on invalid
// configuration.
func NewMCTSController(config MCTSConfig, gen ports.Generator, verifier ports.Verifier, logger *zap.Logger) (*MCTSController, error) {
	if gen == nil {
		return nil, fmt.Errorf("%s: generator cannot be nil", KindMCTS)
	}
	if verifier == nil {
		return nil, fmt.Errorf("%s: verifier cannot be nil", KindMCTS)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCTSController{
		config:   config,
		gen:      gen,
		verifier: verifier,
		logger:   logger,
		tracer:   otel.Tracer("mcts-controller"),
	}, nil
}

// Kind returns KindMCTS.
func (mc *MCTSController) Kind() string { return KindMCTS }

// Run executes simulations until the simulation count or generation
// budget is exhausted, then returns the terminal candidate with the
// highest mean backpropagated value.
func (mc *MCTSController) Run(ctx context.Context, query string, budget Budget) (domain.Candidate, *Trace, error) {
	ctx, span := mc.tracer.Start(ctx, "MCTSController.Run",
		trace.WithAttributes(
			attribute.String("search.kind", KindMCTS),
			attribute.Int("search.simulations", mc.config.Simulations),
			attribute.Float64("search.exploration_c", mc.config.ExplorationC),
			attribute.Int("search.budget", budget.MaxGenerations),
		),
	)
	defer span.End()

	tr := &Trace{Kind: KindMCTS}
	tree, bestLeaf := mc.explore(ctx, query, budget, tr)

	if bestLeaf == noParent {
		err := fmt.Errorf("%s: %w", KindMCTS, domain.ErrNoCandidates)
		span.RecordError(err)
		return domain.Candidate{}, tr, err
	}

	best := tree.get(bestLeaf).cand
	span.SetAttributes(
		attribute.Int("search.nodes", tree.len()),
		attribute.Int("search.root_visits", tree.get(0).visits),
		attribute.Float64("search.best_mean_value", tree.mean(bestLeaf)),
	)
	return best, tr, nil
}

// explore drives the simulation loop and returns the run's arena plus
// the index of the best terminal leaf, or noParent when no simulation
// produced a usable terminal.
func (mc *MCTSController) explore(ctx context.Context, query string, budget Budget, tr *Trace) (*arena, int) {
	tracker := newBudgetTracker(budget)
	runner := newBatchRunner(mc.gen, mc.verifier, mc.config.MaxConcurrency, budget, mc.logger)
	vctx := ports.VerificationContext{Query: query}

	tree := newArena()
	root := tree.addRoot(domain.Candidate{Content: ""})

	// bestLeaf tracks the terminal candidate with the highest mean value
	// seen across simulations; index into the arena.
	bestLeaf := noParent

	for sim := 0; sim < mc.config.Simulations; sim++ {
		if tracker.exhausted() {
			tr.BudgetExhausted = true
			break
		}

		if err := ctx.Err(); err != nil {
			break
		}

		leaf := mc.selectLeaf(tree, root)

		// Expansion: terminal or depth-capped leaves roll out directly.
		target := leaf
		if !tree.get(leaf).terminal && tree.get(leaf).depth < mc.config.MaxDepth {
			children := mc.expand(ctx, tree, leaf, query, tracker, runner, tr)
			if len(children) > 0 {
				// Simulate from the first unvisited child, which is
				// exactly what the next selection pass would pick.
				target = children[0]
			}
		}

		// Simulation: roll out to a terminal candidate and verify it.
		value, terminalID, ok := mc.simulate(ctx, tree, target, query, tracker, runner, vctx, tr)
		if !ok {
			// Rollout failed wholesale; attribute a worst-value visit so
			// selection deprioritizes this subtree instead of looping.
			tree.backpropagate(target, 0)
			continue
		}

		// Backpropagation: credit the value to the terminal node and
		// every ancestor, incrementing visit counts.
		tree.backpropagate(terminalID, value)

		if bestLeaf == noParent || tree.mean(terminalID) > tree.mean(bestLeaf) {
			bestLeaf = terminalID
		}
	}

	return tree, bestLeaf
}

// selectLeaf walks from the root choosing, at each level, the child with
// the maximum UCB1 priority. Unvisited children have infinite priority
// and are taken first; ties resolve to the lowest child index, which is
// insertion order by construction.
func (mc *MCTSController) selectLeaf(tree *arena, root int) int {
	cur := root
	for {
		n := tree.get(cur)
		if len(n.children) == 0 || n.terminal {
			return cur
		}
		best := n.children[0]
		bestScore := tree.ucb1(cur, best, mc.config.ExplorationC)
		for _, child := range n.children[1:] {
			// Strict > keeps the earliest-inserted child on ties.
			if s := tree.ucb1(cur, child, mc.config.ExplorationC); s > bestScore {
				best = child
				bestScore = s
			}
		}
		cur = best
	}
}

// expand generates children for leaf through the generation boundary and
// inserts them into the arena in creation order. Returns the inserted
// child indices; an empty slice means the budget or every call failed.
func (mc *MCTSController) expand(ctx context.Context, tree *arena, leaf int, query string, tracker *budgetTracker, runner *batchRunner, tr *Trace) []int {
	granted := tracker.take(mc.config.ChildrenPerExpand)
	if granted == 0 {
		tr.BudgetExhausted = true
		return nil
	}

	prefix := tree.get(leaf).cand.Content
	reqs := make([]ports.GenerationRequest, granted)
	for i := range reqs {
		reqs[i] = ports.GenerationRequest{
			Query:  query,
			Prefix: prefix,
			Params: diverseParams(mc.config.Params, tree.len(), i),
		}
	}

	generated := runner.generate(ctx, reqs, &tr.Report)
	children := make([]int, 0, len(generated))
	for _, c := range generated {
		children = append(children, tree.addChild(leaf, c, c.Complete))
	}
	return children
}

// simulate rolls out from node to a terminal candidate, verifies it, and
// returns the verification score as the simulation value together with
// the arena index of the terminal node. When the node is already
// terminal the rollout is skipped and the node is verified directly;
// a terminal is verified at most once per run and its cached score is
// reused on later selections.
func (mc *MCTSController) simulate(ctx context.Context, tree *arena, nodeID int, query string, tracker *budgetTracker, runner *batchRunner, vctx ports.VerificationContext, tr *Trace) (float64, int, bool) {
	n := tree.get(nodeID)
	terminal := n.cand
	terminalID := nodeID

	// A re-selected terminal keeps its first verification: revisits
	// must not burn another verifier call or duplicate the candidate
	// in the trace.
	if n.terminal && n.cand.Result != nil {
		if n.cand.Result.Error {
			return 0, nodeID, true
		}
		return n.cand.Score(), nodeID, true
	}

	if !n.terminal && !n.cand.Complete {
		if tracker.take(1) == 0 {
			tr.BudgetExhausted = true
			return 0, nodeID, false
		}
		reqs := []ports.GenerationRequest{{
			Query:  query,
			Prefix: n.cand.Content,
			Params: mc.config.Params,
		}}
		rolled := runner.generate(ctx, reqs, &tr.Report)
		if len(rolled) == 0 {
			return 0, nodeID, false
		}
		terminal = rolled[0]
		terminal.Complete = true
		terminalID = tree.addChild(nodeID, terminal, true)
	}

	scored := runner.verify(ctx, []domain.Candidate{terminal}, vctx, &tr.Report)
	result := scored[0]
	tree.get(terminalID).cand = result
	tree.get(terminalID).terminal = true
	tr.Candidates = append(tr.Candidates, result)

	if result.Result != nil && result.Result.Error {
		// Verifier failure scores worst, not fatal.
		return 0, terminalID, true
	}
	return result.Score(), terminalID, true
}
