// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-quorum/internal/domain"
)

// GenerationRequest describes one call to the generation boundary.
type GenerationRequest struct {
	// Query is the user query being answered.
	Query string

	// Prefix is the partial path to continue, for tree searches.
	// Empty for flat decoding.
	Prefix string

	// Params are the sampling parameters for this call. Controllers vary
	// seed and temperature across a batch to obtain diverse candidates.
	Params domain.SamplingParams
}

// Generator is the generation boundary: it turns a request into a
// candidate. Implementations must be safe for concurrent use, since
// controllers invoke them concurrently within a batch.
//
// Failures must be returned as a *GenerationError, never as an opaque
// error or a panic, so controllers can count partial failures without
// aborting a batch.
type Generator interface {
	// Generate produces one candidate for the request. The returned
	// candidate carries provenance (generator identity, params, cost).
	Generate(ctx context.Context, req GenerationRequest) (domain.Candidate, error)

	// ID identifies this generation backend for provenance and logging.
	ID() string
}

// DifficultyEstimator estimates how hard a query is. It is consumed only
// by the adaptive sampler to select its N-bounds.
type DifficultyEstimator interface {
	// EstimateDifficulty classifies the query as easy, medium, or hard.
	EstimateDifficulty(ctx context.Context, query string) (domain.Difficulty, error)
}

// ConfidenceEstimator estimates how likely a candidate answer is correct.
// It feeds the calibration gate and selective generation.
type ConfidenceEstimator interface {
	// EstimateConfidence returns a confidence in [0, 1] for the
	// candidate answering the query.
	EstimateConfidence(ctx context.Context, query string, candidate domain.Candidate) (float64, error)
}
