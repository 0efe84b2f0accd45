package sampling

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/consensus"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/search"
	"github.com/ahrav/go-quorum/internal/testutils"
)

func newSampler(t *testing.T, script []string, difficulty domain.Difficulty, estimatorErr error) (*AdaptiveSampler, *testutils.ScriptedGenerator) {
	t.Helper()

	gen := testutils.NewScriptedGenerator("test", script, false)
	source, err := search.NewDiverseController(
		search.DiverseConfig{K: 5, MaxConcurrency: 1},
		gen, &testutils.StaticVerifier{DefaultScore: 0.5}, nil)
	require.NoError(t, err)

	aggregator, err := consensus.NewMajorityVote(consensus.Config{Threshold: 0.6}, nil)
	require.NoError(t, err)

	sampler, err := NewAdaptiveSampler(DefaultConfig(), source, aggregator,
		&testutils.FixedDifficulty{Level: difficulty, Err: estimatorErr}, nil)
	require.NoError(t, err)
	return sampler, gen
}

func testBudget(t *testing.T) search.Budget {
	t.Helper()
	b, err := search.NewBudget(100, 0)
	require.NoError(t, err)
	return b
}

func TestNewAdaptiveSampler_Validation(t *testing.T) {
	gen := testutils.NewScriptedGenerator("test", []string{"A"}, false)
	source, err := search.NewDiverseController(search.DefaultDiverseConfig(), gen, &testutils.StaticVerifier{}, nil)
	require.NoError(t, err)
	aggregator, err := consensus.NewMajorityVote(consensus.DefaultConfig(), nil)
	require.NoError(t, err)
	estimator := &testutils.FixedDifficulty{Level: domain.DifficultyEasy}

	t.Run("nil source", func(t *testing.T) {
		_, err := NewAdaptiveSampler(DefaultConfig(), nil, aggregator, estimator, nil)
		assert.Error(t, err, "nil source must fail construction")
	})

	t.Run("nil aggregator", func(t *testing.T) {
		_, err := NewAdaptiveSampler(DefaultConfig(), source, nil, estimator, nil)
		assert.Error(t, err, "nil aggregator must fail construction")
	})

	t.Run("nil estimator", func(t *testing.T) {
		_, err := NewAdaptiveSampler(DefaultConfig(), source, aggregator, nil, nil)
		assert.Error(t, err, "nil estimator must fail construction")
	})

	t.Run("inverted bounds", func(t *testing.T) {
		config := DefaultConfig()
		config.Hard = Bounds{InitialN: 20, MaxN: 10, BatchSize: 5}
		_, err := NewAdaptiveSampler(config, source, aggregator, estimator, nil)
		require.Error(t, err, "initial_n above max_n must fail construction")
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "should wrap the configuration sentinel")
	})

	t.Run("zero batch size", func(t *testing.T) {
		config := DefaultConfig()
		config.Easy.BatchSize = 0
		_, err := NewAdaptiveSampler(config, source, aggregator, estimator, nil)
		assert.Error(t, err, "zero batch size must fail construction")
	})
}

func TestAdaptiveSampler_EasyQueryStopsEarly(t *testing.T) {
	// Unanimous answers: the easy row (3/5/3) should stop right after
	// the initial batch of 3.
	sampler, gen := newSampler(t, []string{"A"}, domain.DifficultyEasy, nil)

	result, state, err := sampler.Run(context.Background(), "q", testBudget(t))
	require.NoError(t, err)

	assert.Equal(t, 3, state.ActualN, "should stop at the initial batch")
	assert.Equal(t, 3, gen.Calls(), "no extra generation beyond the first batch")
	assert.True(t, state.EarlyStopped, "stopping below max is an early stop")
	assert.Equal(t, domain.StopConsensus, state.Reason, "stop reason mismatch")
	assert.True(t, result.ConsensusReached, "unanimous batch reaches consensus")
	assert.InDelta(t, 1.0, result.AgreementScore, 1e-9, "agreement mismatch")
	assert.Len(t, state.AgreementHistory, 1, "one batch means one history entry")
}

func TestAdaptiveSampler_HardQueryRunsToMax(t *testing.T) {
	// Four-way rotation never reaches a 0.6 agreement, so the hard row
	// (10/20/5) runs to its cap.
	sampler, gen := newSampler(t, []string{"A", "B", "C", "D"}, domain.DifficultyHard, nil)

	result, state, err := sampler.Run(context.Background(), "q", testBudget(t))
	require.NoError(t, err)

	assert.Equal(t, 20, state.ActualN, "should run to the hard cap")
	assert.Equal(t, 20, gen.Calls(), "generation count mismatch")
	assert.False(t, state.EarlyStopped, "hitting the cap is not an early stop")
	assert.Equal(t, domain.StopMaxReached, state.Reason, "stop reason mismatch")
	assert.False(t, result.ConsensusReached, "rotation never agrees")
	// Initial batch of 10, then batches of 5: three history entries.
	assert.Len(t, state.AgreementHistory, 3, "history should have one entry per batch")
}

func TestAdaptiveSampler_BudgetBoundsGeneration(t *testing.T) {
	t.Run("budget clips the initial batch", func(t *testing.T) {
		// Hard row wants an initial batch of 10, but only 5 generation
		// calls are allowed.
		sampler, gen := newSampler(t, []string{"A", "B", "C", "D"}, domain.DifficultyHard, nil)
		budget, err := search.NewBudget(5, 0)
		require.NoError(t, err)

		result, state, err := sampler.Run(context.Background(), "q", budget)
		require.NoError(t, err)

		assert.Equal(t, 5, gen.Calls(), "generation calls must never exceed the budget")
		assert.Equal(t, 5, state.ActualN, "actual count mismatch")
		assert.Equal(t, 5, state.Report.GenerationCalls, "report accounting mismatch")
		assert.Equal(t, domain.StopBudget, state.Reason, "stop reason mismatch")
		assert.False(t, state.EarlyStopped, "running out of budget is not an early stop")
		assert.False(t, result.ConsensusReached, "rotation never agrees")
	})

	t.Run("budget clips a later batch", func(t *testing.T) {
		// First batch of 10 fits, then only 2 of the batch-of-5 remain.
		sampler, gen := newSampler(t, []string{"A", "B", "C", "D"}, domain.DifficultyHard, nil)
		budget, err := search.NewBudget(12, 0)
		require.NoError(t, err)

		_, state, err := sampler.Run(context.Background(), "q", budget)
		require.NoError(t, err)

		assert.Equal(t, 12, gen.Calls(), "generation calls must never exceed the budget")
		assert.Equal(t, 12, state.ActualN, "actual count mismatch")
		assert.Equal(t, domain.StopBudget, state.Reason, "stop reason mismatch")
		assert.Len(t, state.AgreementHistory, 2, "one entry per batch expected")
	})
}

func TestAdaptiveSampler_NeverStopsBelowMinimum(t *testing.T) {
	// Medium row starts at 5, so even instant unanimity generates 5.
	sampler, gen := newSampler(t, []string{"A"}, domain.DifficultyMedium, nil)

	_, state, err := sampler.Run(context.Background(), "q", testBudget(t))
	require.NoError(t, err)

	assert.Equal(t, 5, state.ActualN, "the initial batch is the floor")
	assert.Equal(t, 5, gen.Calls(), "generation count mismatch")
	assert.GreaterOrEqual(t, state.ActualN, state.MinCandidates, "must never stop below the minimum")
}

func TestAdaptiveSampler_GrowsInBatches(t *testing.T) {
	// Easy row 3/5/3: the first batch of 3 disagrees, the follow-up
	// batch is clamped to the remaining 2, and the A votes then carry.
	sampler, gen := newSampler(t, []string{"A", "B", "C", "A", "A"}, domain.DifficultyEasy, nil)

	result, state, err := sampler.Run(context.Background(), "q", testBudget(t))
	require.NoError(t, err)

	assert.Equal(t, 5, state.ActualN, "follow-up batch must clamp to max_n")
	assert.Equal(t, 5, gen.Calls(), "generation count mismatch")
	assert.Equal(t, domain.StopConsensus, state.Reason, "3/5 A votes meet the 0.6 threshold")
	assert.False(t, state.EarlyStopped, "stopping exactly at max is not early")
	assert.Len(t, state.AgreementHistory, 2, "two batches expected")
	assert.Equal(t, 3, result.Votes["a"], "vote distribution mismatch")
}

func TestAdaptiveSampler_EstimatorFailureFallsBackToMedium(t *testing.T) {
	sampler, _ := newSampler(t, []string{"A"}, "", errors.New("estimator offline"))

	_, state, err := sampler.Run(context.Background(), "q", testBudget(t))
	require.NoError(t, err, "estimator failure must not abort the run")

	// Medium bounds are 5/10/3.
	assert.Equal(t, 5, state.MinCandidates, "medium floor expected")
	assert.Equal(t, 10, state.MaxCandidates, "medium cap expected")
	assert.Equal(t, 5, state.ActualN, "unanimous medium run stops at its floor")
}

func TestAdaptiveSampler_BatchFailurePropagates(t *testing.T) {
	sampler, _ := newSampler(t, []string{testutils.FailMark}, domain.DifficultyEasy, nil)

	_, _, err := sampler.Run(context.Background(), "q", testBudget(t))
	require.Error(t, err, "a batch that produces nothing is fatal")
	assert.True(t, errors.Is(err, domain.ErrNoCandidates), "should wrap ErrNoCandidates")
}

func TestAdaptiveSampler_ReportAccumulates(t *testing.T) {
	sampler, _ := newSampler(t, []string{"A", "B", "C", "D"}, domain.DifficultyHard, nil)

	_, state, err := sampler.Run(context.Background(), "q", testBudget(t))
	require.NoError(t, err)

	assert.Equal(t, 20, state.Report.GenerationCalls, "report should span all batches")
	assert.Equal(t, 20, state.Report.VerificationCalls, "every candidate is verified")
	assert.Zero(t, state.Report.GenerationFailures, "no failures were scripted")
}
