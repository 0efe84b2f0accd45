package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
	"github.com/ahrav/go-quorum/internal/search"
	"github.com/ahrav/go-quorum/internal/testutils"
)

// captureMetrics records every metric call for assertions.
type captureMetrics struct {
	mu        sync.Mutex
	counters  map[string]float64
	gauges    map[string]float64
	latencies map[string]time.Duration
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		counters:  make(map[string]float64),
		gauges:    make(map[string]float64),
		latencies: make(map[string]time.Duration),
	}
}

func (m *captureMetrics) RecordLatency(operation string, d time.Duration, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[operation] = d
}

func (m *captureMetrics) RecordCounter(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metric] += value
}

func (m *captureMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metric] = value
}

func (m *captureMetrics) RecordHistogram(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metric] = value
}

func (m *captureMetrics) counter(metric string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[metric]
}

var _ ports.MetricsCollector = (*captureMetrics)(nil)

// testEngineConfig returns a deterministic config: serial generation and
// a budget large enough that no test run clips.
func testEngineConfig() EngineConfig {
	config := DefaultEngineConfig()
	config.Budget = BudgetConfig{MaxGenerations: 100}
	config.Diverse.MaxConcurrency = 1
	config.Beam.MaxConcurrency = 1
	config.MCTS.MaxConcurrency = 1
	return config
}

func TestNewEngine_Validation(t *testing.T) {
	gen := testutils.NewScriptedGenerator("g", []string{"A"}, false)
	verifier := &testutils.StaticVerifier{DefaultScore: 0.5, PassAt: 0.5}

	t.Run("nil generator", func(t *testing.T) {
		_, err := NewEngine(testEngineConfig(), Dependencies{Verifier: verifier})
		require.Error(t, err, "generator is required")
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "should wrap the configuration sentinel")
	})

	t.Run("nil verifier", func(t *testing.T) {
		_, err := NewEngine(testEngineConfig(), Dependencies{Generator: gen})
		require.Error(t, err, "verifier is required")
	})

	t.Run("invalid controller", func(t *testing.T) {
		config := testEngineConfig()
		config.Controller = "oracle"
		_, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "should wrap the configuration sentinel")
	})

	t.Run("invalid consensus threshold", func(t *testing.T) {
		config := testEngineConfig()
		config.Consensus.Threshold = 1.5
		_, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "should wrap the configuration sentinel")
	})

	t.Run("invalid selective economics", func(t *testing.T) {
		config := testEngineConfig()
		config.Selective.Reward = 0
		_, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
		require.Error(t, err)
	})
}

func TestEngine_RunSearch_AdaptiveDiverse(t *testing.T) {
	gen := testutils.NewScriptedGenerator("g", []string{"A", "A", "A"}, false)
	verifier := &testutils.StaticVerifier{DefaultScore: 0.8, PassAt: 0.5}
	metrics := newCaptureMetrics()

	engine, err := NewEngine(testEngineConfig(), Dependencies{
		Generator:  gen,
		Verifier:   verifier,
		Difficulty: &testutils.FixedDifficulty{Level: domain.DifficultyEasy},
		Metrics:    metrics,
	})
	require.NoError(t, err)

	outcome, err := engine.RunSearch(context.Background(), "what is 2+2", "")
	require.NoError(t, err)

	assert.NotEmpty(t, outcome.RunID, "run ID should be assigned")
	assert.Equal(t, search.KindDiverse, outcome.Controller, "empty kind should fall back to the configured controller")

	require.NotNil(t, outcome.Sampling, "adaptive runs carry sampling history")
	assert.Nil(t, outcome.Trace, "adaptive runs carry no controller trace")
	assert.True(t, outcome.Sampling.EarlyStopped, "unanimous easy query should stop at the floor")
	assert.Equal(t, 3, outcome.Sampling.ActualN, "easy floor is three candidates")

	assert.True(t, outcome.Consensus.ConsensusReached, "unanimous votes reach consensus")
	assert.InDelta(t, 1.0, outcome.Consensus.AgreementScore, 1e-9, "unanimous agreement")
	require.NotNil(t, outcome.Consensus.Selected)
	assert.Equal(t, "A", outcome.Consensus.Selected.Content, "winner content mismatch")

	assert.Equal(t, 3, outcome.Report.GenerationCalls, "generation call accounting mismatch")
	assert.Equal(t, 1.0, metrics.counter("consensus_reached"), "consensus counter should fire once")
	assert.Equal(t, 1.0, metrics.counter("early_stop"), "early stop counter should fire once")
}

func TestEngine_RunSearch_NonAdaptiveDiverse(t *testing.T) {
	gen := testutils.NewScriptedGenerator("g", []string{"A", "B", "A", "A"}, false)
	verifier := &testutils.StaticVerifier{
		Scores: map[string]float64{"A": 0.9, "B": 0.4},
		PassAt: 0.5,
	}

	config := testEngineConfig()
	config.Adaptive = false
	config.Diverse.K = 4

	engine, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
	require.NoError(t, err)

	outcome, err := engine.RunSearch(context.Background(), "pick a letter", search.KindDiverse)
	require.NoError(t, err)

	require.NotNil(t, outcome.Trace, "single-shot runs carry a controller trace")
	assert.Nil(t, outcome.Sampling, "non-adaptive runs have no sampling history")
	assert.Len(t, outcome.Trace.Candidates, 4, "all four candidates should survive")

	assert.True(t, outcome.Consensus.ConsensusReached, "three of four votes reach consensus")
	assert.InDelta(t, 0.75, outcome.Consensus.AgreementScore, 1e-9, "agreement score mismatch")
	assert.Equal(t, 3, outcome.Consensus.Votes["a"], "vote tally mismatch")
	require.NotNil(t, outcome.Consensus.Selected)
	assert.Equal(t, "A", outcome.Consensus.Selected.Content, "winner content mismatch")
}

func TestEngine_RunSearch_AdaptiveRequiresEstimator(t *testing.T) {
	// Adaptive is configured but no difficulty estimator is wired, so
	// the run degrades to a single fixed-size batch.
	gen := testutils.NewScriptedGenerator("g", []string{"A"}, false)
	verifier := &testutils.StaticVerifier{DefaultScore: 0.8, PassAt: 0.5}

	config := testEngineConfig()
	config.Diverse.K = 2

	engine, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
	require.NoError(t, err)

	outcome, err := engine.RunSearch(context.Background(), "q", "")
	require.NoError(t, err)
	assert.NotNil(t, outcome.Trace, "should have run the plain controller")
	assert.Nil(t, outcome.Sampling, "no sampler should have been involved")
	assert.Equal(t, 2, outcome.Report.GenerationCalls, "should generate exactly K candidates")
}

func TestEngine_RunSearch_Beam(t *testing.T) {
	gen := testutils.NewScriptedGenerator("g", []string{"A!"}, true)
	verifier := &testutils.StaticVerifier{DefaultScore: 0.9, PassAt: 0.5}

	config := testEngineConfig()
	config.Beam.BeamWidth = 1
	config.Beam.BranchingFactor = 1
	config.Beam.MaxDepth = 3

	engine, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
	require.NoError(t, err)

	outcome, err := engine.RunSearch(context.Background(), "q", search.KindBeam)
	require.NoError(t, err)

	assert.Equal(t, search.KindBeam, outcome.Controller)
	require.NotNil(t, outcome.Trace)
	require.NotNil(t, outcome.Consensus.Selected)
	assert.Equal(t, "A!", outcome.Consensus.Selected.Content, "complete path should win")
	assert.Equal(t, 1, outcome.Report.GenerationCalls, "a single complete continuation suffices")
}

func TestEngine_RunSearch_MCTS(t *testing.T) {
	gen := testutils.NewScriptedGenerator("g", []string{"A!", "B!"}, true)
	verifier := &testutils.StaticVerifier{
		Scores: map[string]float64{"A!": 0.9, "B!": 0.3},
		PassAt: 0.5,
	}

	config := testEngineConfig()
	config.MCTS.Simulations = 4
	config.MCTS.ChildrenPerExpand = 2
	config.MCTS.MaxDepth = 2

	engine, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
	require.NoError(t, err)

	outcome, err := engine.RunSearch(context.Background(), "q", search.KindMCTS)
	require.NoError(t, err)

	assert.Equal(t, search.KindMCTS, outcome.Controller)
	require.NotNil(t, outcome.Trace)
	require.NotNil(t, outcome.Consensus.Selected)
	assert.Equal(t, "A!", outcome.Consensus.Selected.Content, "higher-scoring path should win")
	assert.Positive(t, outcome.Report.GenerationCalls)
}

func TestEngine_RunSearch_UnknownKind(t *testing.T) {
	gen := testutils.NewScriptedGenerator("g", []string{"A"}, false)
	verifier := &testutils.StaticVerifier{DefaultScore: 0.5, PassAt: 0.5}

	engine, err := NewEngine(testEngineConfig(), Dependencies{Generator: gen, Verifier: verifier})
	require.NoError(t, err)

	_, err = engine.RunSearch(context.Background(), "q", "oracle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownController), "should surface the unknown-controller sentinel")
	assert.Zero(t, gen.Calls(), "no generation spend on an unknown controller")
}

func TestEngine_RunSearch_AllGenerationFails(t *testing.T) {
	gen := testutils.NewScriptedGenerator("g", []string{testutils.FailMark}, false)
	verifier := &testutils.StaticVerifier{DefaultScore: 0.5, PassAt: 0.5}

	config := testEngineConfig()
	config.Adaptive = false
	config.Diverse.K = 3

	engine, err := NewEngine(config, Dependencies{Generator: gen, Verifier: verifier})
	require.NoError(t, err)

	_, err = engine.RunSearch(context.Background(), "q", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoCandidates), "total generation failure should surface the sentinel")
}

// decideFixture builds an engine around a unanimous three-candidate run.
func decideFixture(t *testing.T, mutate func(*EngineConfig), deps func(*Dependencies)) *Engine {
	t.Helper()

	config := testEngineConfig()
	config.Adaptive = false
	config.Diverse.K = 3
	if mutate != nil {
		mutate(&config)
	}

	d := Dependencies{
		Generator: testutils.NewScriptedGenerator("g", []string{"A", "A", "A"}, false),
		Verifier:  &testutils.StaticVerifier{DefaultScore: 0.9, PassAt: 0.5},
	}
	if deps != nil {
		deps(&d)
	}

	engine, err := NewEngine(config, d)
	require.NoError(t, err)
	return engine
}

func TestEngine_Decide_ExplicitConfidence(t *testing.T) {
	engine := decideFixture(t, nil, nil)

	outcome, err := engine.Decide(context.Background(), "q", 0.9)
	require.NoError(t, err)

	assert.Equal(t, 0.9, outcome.Confidence, "explicit confidence should pass through untouched")
	assert.Equal(t, domain.ActionDirect, outcome.Calibration.Chosen, "high confidence routes direct")
	assert.Equal(t, domain.UncertaintyNone, outcome.Uncertainty.Kind, "consensus plus confidence is certain")
	assert.Equal(t, domain.ActionDirect, outcome.Value.Chosen, "positive expected value answers")
	assert.InDelta(t, 0.8, outcome.Value.EVAnswer, 1e-9, "expected value mismatch")
	assert.Equal(t, domain.ActionDirect, outcome.Final, "all three layers agree on direct")
	require.NotNil(t, outcome.Search)
	assert.True(t, outcome.Search.Consensus.ConsensusReached)
}

func TestEngine_Decide_EstimatedConfidence(t *testing.T) {
	t.Run("estimator value wins", func(t *testing.T) {
		engine := decideFixture(t, nil, func(d *Dependencies) {
			d.Confidence = &testutils.FixedConfidence{Value: 0.85}
		})
		outcome, err := engine.Decide(context.Background(), "q", -1)
		require.NoError(t, err)
		assert.Equal(t, 0.85, outcome.Confidence, "estimator confidence should be used")
	})

	t.Run("estimator failure falls back to agreement", func(t *testing.T) {
		engine := decideFixture(t, nil, func(d *Dependencies) {
			d.Confidence = &testutils.FixedConfidence{Err: errors.New("estimator down")}
		})
		outcome, err := engine.Decide(context.Background(), "q", -1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, outcome.Confidence, 1e-9, "unanimous agreement score stands in")
	})

	t.Run("no estimator uses agreement", func(t *testing.T) {
		engine := decideFixture(t, nil, nil)
		outcome, err := engine.Decide(context.Background(), "q", -1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, outcome.Confidence, 1e-9, "agreement score stands in")
	})
}

func TestEngine_Decide_ExpectedValueVeto(t *testing.T) {
	// A safety-critical penalty makes answering negative-EV even at
	// confidence 0.9, so the veto downgrades the gate's direct routing.
	engine := decideFixture(t, func(c *EngineConfig) {
		c.Selective.Reward = 1
		c.Selective.Penalty = 10
	}, nil)

	outcome, err := engine.Decide(context.Background(), "q", 0.9)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionDirect, outcome.Calibration.Chosen, "gate alone would answer")
	assert.Equal(t, domain.ActionAbstain, outcome.Value.Chosen, "negative expected value abstains")
	assert.InDelta(t, -0.1, outcome.Value.EVAnswer, 1e-9, "expected value mismatch")
	assert.Equal(t, domain.ActionAbstain, outcome.Final, "the veto must win")
}

func TestEngine_Decide_ScatteredVotesAbstain(t *testing.T) {
	engine := decideFixture(t, func(c *EngineConfig) {
		c.Diverse.K = 5
	}, func(d *Dependencies) {
		d.Generator = testutils.NewScriptedGenerator("g", []string{"A", "A", "B", "C", "D"}, false)
	})

	outcome, err := engine.Decide(context.Background(), "q", 0.3)
	require.NoError(t, err)

	assert.False(t, outcome.Search.Consensus.ConsensusReached, "two of five votes do not agree")
	assert.Equal(t, domain.UncertaintyEpistemic, outcome.Uncertainty.Kind, "weak support everywhere is epistemic")
	assert.True(t, outcome.Uncertainty.High, "confidence 0.3 is high epistemic uncertainty")
	assert.Equal(t, domain.ActionAbstain, outcome.Final, "low confidence without consensus abstains")
}
