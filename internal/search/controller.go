// Package search implements verifier-guided search controllers over the
// generation boundary: diverse decoding, beam search, and Monte-Carlo
// tree search. All controllers share one contract: run a query under a
// generation budget and return the best candidate plus a trace.
package search

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// Controller kinds registered with the engine.
const (
	KindDiverse = "diverse"
	KindBeam    = "beam"
	KindMCTS    = "mcts"
)

// Budget bounds total generation calls for one run. The zero value is
// invalid; construct through NewBudget.
type Budget struct {
	// MaxGenerations is the total number of generation-boundary calls
	// the run may make.
	MaxGenerations int

	// PerCallTimeout applies to each generation and verification call.
	// Zero disables the per-call timeout.
	PerCallTimeout time.Duration
}

// NewBudget validates and returns a Budget.
func NewBudget(maxGenerations int, perCallTimeout time.Duration) (Budget, error) {
	if maxGenerations <= 0 {
		return Budget{}, domain.NewConfigError("budget", "max_generations", "must be positive")
	}
	if perCallTimeout < 0 {
		return Budget{}, domain.NewConfigError("budget", "per_call_timeout", "must be non-negative")
	}
	return Budget{MaxGenerations: maxGenerations, PerCallTimeout: perCallTimeout}, nil
}

// Trace records what a run did: every verified terminal candidate, call
// counts, and why the run stopped. The candidate list feeds the
// aggregator after the run.
type Trace struct {
	// Kind is the controller kind that produced this trace.
	Kind string `json:"kind"`

	// Candidates are the verified terminal candidates the run produced,
	// in creation order.
	Candidates []domain.Candidate `json:"candidates"`

	// Report tallies boundary calls and failures.
	Report domain.RunReport `json:"report"`

	// BudgetExhausted is true when the run stopped because it consumed
	// its generation budget.
	BudgetExhausted bool `json:"budget_exhausted"`
}

// Controller is the common search contract. Implementations own all tree
// state for the duration of one Run call; a Controller value itself is
// stateless and safe for concurrent Runs.
type Controller interface {
	// Kind returns the controller kind identifier.
	Kind() string

	// Run searches for the best answer to query within budget. It
	// returns the best candidate found and a trace of the run.
	// Partial generation failures are absorbed into the trace; Run only
	// fails when configuration is unusable or no candidate at all could
	// be produced.
	Run(ctx context.Context, query string, budget Budget) (domain.Candidate, *Trace, error)
}

// budgetTracker meters generation calls for one run. It is owned by the
// single controlling goroutine and never shared.
type budgetTracker struct {
	remaining int
}

func newBudgetTracker(b Budget) *budgetTracker {
	return &budgetTracker{remaining: b.MaxGenerations}
}

// take reserves up to n generation calls and returns how many were
// granted. Zero means the budget is exhausted.
func (t *budgetTracker) take(n int) int {
	if n > t.remaining {
		n = t.remaining
	}
	t.remaining -= n
	return n
}

func (t *budgetTracker) exhausted() bool { return t.remaining <= 0 }

// genOutcome is one generation worker's result, delivered over the
// batch's append-only results channel.
type genOutcome struct {
	seq  int
	cand domain.Candidate
	err  error
}

// batchRunner runs concurrent generation and verification batches for a
// controller. Workers share nothing but the results channel; the owning
// goroutine joins on the whole batch before anything downstream sees it.
type batchRunner struct {
	gen            ports.Generator
	verifier       ports.Verifier
	maxConcurrency int
	perCallTimeout time.Duration
	logger         *zap.Logger
}

func newBatchRunner(gen ports.Generator, verifier ports.Verifier, maxConcurrency int, budget Budget, logger *zap.Logger) *batchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &batchRunner{
		gen:            gen,
		verifier:       verifier,
		maxConcurrency: maxConcurrency,
		perCallTimeout: budget.PerCallTimeout,
		logger:         logger,
	}
}

// generate runs the requests concurrently up to the concurrency limit
// and returns the produced candidates in request order. A failed call is
// logged and counted, never fatal: the batch completes with whatever
// succeeded.
func (br *batchRunner) generate(ctx context.Context, reqs []ports.GenerationRequest, report *domain.RunReport) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(reqs))
	for _, c := range br.generateAligned(ctx, reqs, report) {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	return candidates
}

// generateAligned is generate with the result slice position-aligned to
// reqs: failed slots are nil. Tree controllers use it to map each
// continuation back to its parent path.
func (br *batchRunner) generateAligned(ctx context.Context, reqs []ports.GenerationRequest, report *domain.RunReport) []*domain.Candidate {
	results := make(chan genOutcome, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(br.maxConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			callCtx := gctx
			var cancel context.CancelFunc
			if br.perCallTimeout > 0 {
				callCtx, cancel = context.WithTimeout(gctx, br.perCallTimeout)
				defer cancel()
			}
			cand, err := br.gen.Generate(callCtx, req)
			results <- genOutcome{seq: i, cand: cand, err: err}
			// Failures are batch data, not group errors.
			return nil
		})
	}
	// Join on the whole batch before processing; no partial-batch
	// decisions happen downstream.
	_ = g.Wait()
	close(results)

	ordered := make([]*domain.Candidate, len(reqs))
	for out := range results {
		report.GenerationCalls++
		if out.err != nil {
			report.GenerationFailures++
			br.logger.Warn("generation call failed",
				zap.Int("seq", out.seq),
				zap.Error(out.err))
			continue
		}
		c := out.cand
		report.TokensUsed += c.Provenance.TokensUsed
		ordered[out.seq] = &c
	}
	return ordered
}

// verify scores candidates and returns them with results attached, in
// input order. Verifier errors surface as error-flagged results per the
// verifier contract and are tallied in the report.
func (br *batchRunner) verify(ctx context.Context, candidates []domain.Candidate, vctx ports.VerificationContext, report *domain.RunReport) []domain.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if br.perCallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, br.perCallTimeout)
		defer cancel()
	}

	results := ports.VerifyAll(callCtx, br.verifier, candidates, vctx)
	scored := make([]domain.Candidate, len(candidates))
	for i, c := range candidates {
		report.VerificationCalls++
		if results[i].Error {
			report.VerificationErrors++
			br.logger.Warn("verification errored",
				zap.String("candidate", c.ID),
				zap.String("rationale", results[i].Rationale))
		}
		scored[i] = c.WithResult(results[i])
	}
	return scored
}

// bestByScore returns the highest-scoring candidate, ties broken by
// earliest position. The boolean is false when the slice is empty.
func bestByScore(candidates []domain.Candidate) (domain.Candidate, bool) {
	if len(candidates) == 0 {
		return domain.Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score() > best.Score() {
			best = c
		}
	}
	return best, true
}

// diverseParams varies seed and temperature across a batch so
// independently sampled candidates do not collapse onto one decode path.
func diverseParams(base domain.SamplingParams, offset, i int) domain.SamplingParams {
	p := base
	p.Seed = base.Seed + int64(offset+i)
	if base.Temperature > 0 && i > 0 {
		// Small ramp keeps later samples exploratory without leaving
		// the useful range.
		p.Temperature = min(base.Temperature+0.05*float64(i%4), 1.5)
	}
	return p
}
