package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-quorum/internal/consensus"
	"github.com/ahrav/go-quorum/internal/decision"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
	"github.com/ahrav/go-quorum/internal/sampling"
	"github.com/ahrav/go-quorum/internal/search"
)

// Dependencies are the external boundaries the engine composes.
// Generator and Verifier are required; the rest degrade gracefully when
// absent.
type Dependencies struct {
	// Generator is the generation boundary.
	Generator ports.Generator

	// Verifier scores candidates.
	Verifier ports.Verifier

	// Difficulty selects adaptive sampling bounds. Required only when
	// adaptive sampling is enabled.
	Difficulty ports.DifficultyEstimator

	// Confidence estimates answer confidence for Decide when the caller
	// does not supply one. Optional; the agreement score stands in when
	// absent.
	Confidence ports.ConfidenceEstimator

	// Metrics receives run-level metrics. Optional.
	Metrics ports.MetricsCollector

	// Logger receives structured run logs. Optional.
	Logger *zap.Logger
}

// SearchOutcome is the result of one search run.
type SearchOutcome struct {
	// RunID uniquely identifies this run for logs and traces.
	RunID string `json:"run_id"`

	// Controller is the controller kind that executed the run.
	Controller string `json:"controller"`

	// Consensus is the aggregated verdict over the run's candidates.
	Consensus domain.ConsensusResult `json:"consensus"`

	// Trace is the controller trace. Nil for adaptive diverse runs,
	// which record their history in Sampling instead.
	Trace *search.Trace `json:"trace,omitempty"`

	// Sampling is the adaptive sampling history. Nil for non-adaptive
	// runs.
	Sampling *domain.SamplingState `json:"sampling,omitempty"`

	// Report tallies boundary calls and token usage.
	Report domain.RunReport `json:"report"`

	// Elapsed is the wall time of the run.
	Elapsed time.Duration `json:"elapsed"`
}

// DecisionOutcome is the result of the full decide pipeline: search,
// consensus, calibration, uncertainty arbitration, and answer
// economics.
type DecisionOutcome struct {
	// Search is the underlying search outcome.
	Search *SearchOutcome `json:"search"`

	// Confidence is the confidence the decision layers consumed.
	Confidence float64 `json:"confidence"`

	// Calibration is the gate's routing decision.
	Calibration domain.CalibrationDecision `json:"calibration"`

	// Uncertainty classifies why confidence is limited.
	Uncertainty domain.UncertaintyAssessment `json:"uncertainty"`

	// Value is the expected-value answer-or-abstain decision.
	Value domain.EVDecision `json:"value"`

	// Final is the action that survives all three layers.
	Final domain.Action `json:"final"`
}

// Engine composes controllers, the aggregator, the adaptive sampler, and
// the decision layers behind two operations: RunSearch and Decide.
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	config     EngineConfig
	deps       Dependencies
	aggregator *consensus.MajorityVote
	gate       *decision.CalibrationGate
	selective  *decision.SelectiveGenerator
	classifier *decision.UncertaintyClassifier
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewEngine validates the configuration and builds an engine. It fails
// fast on any invalid section so no generation spend happens on a
// misconfigured run.
func NewEngine(config EngineConfig, deps Dependencies) (*Engine, error) {
	if deps.Generator == nil {
		return nil, domain.NewConfigError("engine", "generator", "generator is required")
	}
	if deps.Verifier == nil {
		return nil, domain.NewConfigError("engine", "verifier", "verifier is required")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	aggregator, err := consensus.NewMajorityVote(config.Consensus, nil)
	if err != nil {
		return nil, err
	}
	gate, err := decision.NewCalibrationGate(config.Gate)
	if err != nil {
		return nil, err
	}
	selective, err := decision.NewSelectiveGenerator(config.Selective)
	if err != nil {
		return nil, err
	}
	classifier, err := decision.NewUncertaintyClassifier(config.Uncertainty)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		config:     config,
		deps:       deps,
		aggregator: aggregator,
		gate:       gate,
		selective:  selective,
		classifier: classifier,
		logger:     logger,
		tracer:     otel.Tracer("application/engine"),
	}, nil
}

// RunSearch executes one search run for query using the named controller
// kind. An empty kind falls back to the configured default.
func (e *Engine) RunSearch(ctx context.Context, query, kind string) (*SearchOutcome, error) {
	if kind == "" {
		kind = e.config.Controller
	}

	runID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "engine.run_search",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.controller", kind),
		),
	)
	defer span.End()

	budget, err := e.config.budget()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcome, err := e.dispatch(ctx, query, kind, budget)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	outcome.RunID = runID
	outcome.Controller = kind
	outcome.Elapsed = time.Since(start)

	e.logger.Info("search run finished",
		zap.String("run_id", runID),
		zap.String("controller", kind),
		zap.Bool("consensus", outcome.Consensus.ConsensusReached),
		zap.Float64("agreement", outcome.Consensus.AgreementScore),
		zap.Int("generation_calls", outcome.Report.GenerationCalls),
		zap.Duration("elapsed", outcome.Elapsed))
	e.record(outcome)

	span.SetAttributes(
		attribute.Bool("run.consensus", outcome.Consensus.ConsensusReached),
		attribute.Float64("run.agreement", outcome.Consensus.AgreementScore),
		attribute.Int("run.generation_calls", outcome.Report.GenerationCalls),
	)
	return outcome, nil
}

// dispatch routes to the controller implementation for kind.
func (e *Engine) dispatch(ctx context.Context, query, kind string, budget search.Budget) (*SearchOutcome, error) {
	switch kind {
	case search.KindDiverse:
		return e.runDiverse(ctx, query, budget)
	case search.KindBeam:
		controller, err := search.NewBeamController(e.config.Beam, e.deps.Generator, e.deps.Verifier, e.logger)
		if err != nil {
			return nil, err
		}
		return e.runController(ctx, controller, query, budget)
	case search.KindMCTS:
		controller, err := search.NewMCTSController(e.config.MCTS, e.deps.Generator, e.deps.Verifier, e.logger)
		if err != nil {
			return nil, err
		}
		return e.runController(ctx, controller, query, budget)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownController, kind)
	}
}

// runDiverse runs diverse decoding, adaptively sampled when configured
// and a difficulty estimator is available.
func (e *Engine) runDiverse(ctx context.Context, query string, budget search.Budget) (*SearchOutcome, error) {
	controller, err := search.NewDiverseController(e.config.Diverse, e.deps.Generator, e.deps.Verifier, e.logger)
	if err != nil {
		return nil, err
	}

	if e.config.Adaptive && e.deps.Difficulty != nil {
		sampler, err := sampling.NewAdaptiveSampler(e.config.Sampling, controller, e.aggregator, e.deps.Difficulty, e.logger)
		if err != nil {
			return nil, err
		}
		result, state, err := sampler.Run(ctx, query, budget)
		if err != nil {
			return nil, err
		}
		return &SearchOutcome{
			Consensus: result,
			Sampling:  state,
			Report:    state.Report,
		}, nil
	}

	return e.runController(ctx, controller, query, budget)
}

// runController runs a controller once and aggregates its trace.
func (e *Engine) runController(ctx context.Context, controller search.Controller, query string, budget search.Budget) (*SearchOutcome, error) {
	_, tr, err := controller.Run(ctx, query, budget)
	if err != nil {
		return nil, err
	}
	return &SearchOutcome{
		Consensus: e.aggregator.Aggregate(tr.Candidates),
		Trace:     tr,
		Report:    tr.Report,
	}, nil
}

// Decide runs the full pipeline for query: search, consensus,
// calibration, uncertainty arbitration, and the expected-value check.
//
// A negative confidence asks the engine to estimate one: through the
// confidence estimator when present, otherwise the agreement score
// stands in.
func (e *Engine) Decide(ctx context.Context, query string, confidence float64) (*DecisionOutcome, error) {
	outcome, err := e.RunSearch(ctx, query, "")
	if err != nil {
		return nil, err
	}

	if confidence < 0 {
		confidence = e.estimateConfidence(ctx, query, outcome)
	}

	calibration := e.gate.RouteConsensus(outcome.Consensus, confidence)
	assessment := e.classifier.Classify(outcome.Consensus, confidence)
	arbitrated := decision.Arbitrate(calibration, assessment)
	value := e.selective.Decide(confidence)

	// The gate and the classifier route; the expected-value check holds
	// veto power over answering at all.
	final := arbitrated.Chosen
	if final == domain.ActionDirect && value.Chosen == domain.ActionAbstain {
		final = domain.ActionAbstain
	}

	e.logger.Info("decision made",
		zap.String("run_id", outcome.RunID),
		zap.Float64("confidence", confidence),
		zap.String("calibration", string(calibration.Chosen)),
		zap.String("uncertainty", string(assessment.Kind)),
		zap.String("final", string(final)))

	return &DecisionOutcome{
		Search:      outcome,
		Confidence:  confidence,
		Calibration: arbitrated,
		Uncertainty: assessment,
		Value:       value,
		Final:       final,
	}, nil
}

// estimateConfidence produces a confidence for the selected answer. The
// estimator is preferred; failures and absence fall back to the
// agreement score, which is a reasonable proxy when votes exist.
func (e *Engine) estimateConfidence(ctx context.Context, query string, outcome *SearchOutcome) float64 {
	if e.deps.Confidence != nil && outcome.Consensus.Selected != nil {
		confidence, err := e.deps.Confidence.EstimateConfidence(ctx, query, *outcome.Consensus.Selected)
		if err == nil {
			return confidence
		}
		e.logger.Warn("confidence estimation failed, using agreement score",
			zap.String("run_id", outcome.RunID),
			zap.Error(err))
	}
	return outcome.Consensus.AgreementScore
}

// record publishes run-level metrics.
func (e *Engine) record(outcome *SearchOutcome) {
	if e.deps.Metrics == nil {
		return
	}
	labels := map[string]string{"controller": outcome.Controller}
	e.deps.Metrics.RecordLatency("search_run", outcome.Elapsed, labels)
	e.deps.Metrics.RecordGauge("agreement_score", outcome.Consensus.AgreementScore, labels)
	if outcome.Consensus.ConsensusReached {
		e.deps.Metrics.RecordCounter("consensus_reached", 1, labels)
	}
	if outcome.Sampling != nil && outcome.Sampling.EarlyStopped {
		e.deps.Metrics.RecordCounter("early_stop", 1, labels)
	}
}
