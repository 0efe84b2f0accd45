package verifiers

import (
	"context"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.BatchVerifier = (*GroundTruthVerifier)(nil)

// GroundTruthVerifier decorates a verifier with a fixed ground truth.
// Search controllers build verification contexts from the query alone;
// this wrapper fills in the expected answer for runs that have one.
type GroundTruthVerifier struct {
	next        ports.Verifier
	groundTruth string
}

// WithGroundTruth wraps next so every verification sees groundTruth
// unless the caller already supplied one.
func WithGroundTruth(next ports.Verifier, groundTruth string) *GroundTruthVerifier {
	return &GroundTruthVerifier{next: next, groundTruth: groundTruth}
}

// Name returns the wrapped verifier's name.
func (gv *GroundTruthVerifier) Name() string { return gv.next.Name() }

// ScoreRange returns the wrapped verifier's score range.
func (gv *GroundTruthVerifier) ScoreRange() (float64, float64) { return gv.next.ScoreRange() }

// SupportsStreaming returns the wrapped verifier's streaming support.
func (gv *GroundTruthVerifier) SupportsStreaming() bool { return gv.next.SupportsStreaming() }

// Verify delegates with the ground truth filled in.
func (gv *GroundTruthVerifier) Verify(ctx context.Context, candidate domain.Candidate, vctx ports.VerificationContext) domain.VerificationResult {
	return gv.next.Verify(ctx, candidate, gv.fill(vctx))
}

// VerifyBatch delegates with the ground truth filled in, preserving the
// wrapped verifier's batch behavior.
func (gv *GroundTruthVerifier) VerifyBatch(ctx context.Context, candidates []domain.Candidate, vctx ports.VerificationContext) []domain.VerificationResult {
	return ports.VerifyAll(ctx, gv.next, candidates, gv.fill(vctx))
}

func (gv *GroundTruthVerifier) fill(vctx ports.VerificationContext) ports.VerificationContext {
	if vctx.GroundTruth == "" {
		vctx.GroundTruth = gv.groundTruth
	}
	return vctx
}
