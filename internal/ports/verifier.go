package ports

import (
	"context"

	"github.com/ahrav/go-quorum/internal/domain"
)

// VerificationContext carries the reference material a verifier may need
// beyond the candidate itself.
type VerificationContext struct {
	// Query is the user query the candidate answers.
	Query string

	// GroundTruth is the reference answer, when one exists. Deterministic
	// verifiers require it; judged verifiers may ignore it.
	GroundTruth string

	// Metadata carries verifier-specific auxiliary inputs.
	Metadata map[string]string
}

// Verifier scores a candidate. Implementations must never let an internal
// failure escape: any timeout, malformed input, or transport error is
// converted into a VerificationResult with Error=true and Score=0.
// Implementations must be stateless and safe for concurrent use.
type Verifier interface {
	// Name returns a unique identifier for this verifier, recorded in
	// every result it produces.
	Name() string

	// Verify scores one candidate. It never returns an error; failures
	// are represented in the result itself.
	Verify(ctx context.Context, candidate domain.Candidate, vctx VerificationContext) domain.VerificationResult

	// ScoreRange declares the bounds of the scores this verifier emits.
	// The default contract is [0, 1].
	ScoreRange() (min, max float64)

	// SupportsStreaming reports whether the verifier can score partial
	// candidates as they stream in.
	SupportsStreaming() bool
}

// BatchVerifier is the optional batching capability. Verifiers that can
// amortize setup or transport cost across candidates implement it;
// callers fall back to per-candidate Verify otherwise.
type BatchVerifier interface {
	Verifier

	// VerifyBatch scores candidates in order. The returned slice has one
	// result per candidate, position-aligned with the input.
	VerifyBatch(ctx context.Context, candidates []domain.Candidate, vctx VerificationContext) []domain.VerificationResult
}

// VerifyAll scores every candidate with v, using VerifyBatch when the
// verifier supports it. It is the single entry point controllers use so
// the batching capability is honored uniformly.
func VerifyAll(ctx context.Context, v Verifier, candidates []domain.Candidate, vctx VerificationContext) []domain.VerificationResult {
	if bv, ok := v.(BatchVerifier); ok {
		return bv.VerifyBatch(ctx, candidates, vctx)
	}
	results := make([]domain.VerificationResult, len(candidates))
	for i, c := range candidates {
		results[i] = v.Verify(ctx, c, vctx)
	}
	return results
}
