// Package domain contains pure, dependency-free domain models and types
// for the search and consensus engine.
package domain

import (
	"fmt"
	"time"
)

// SamplingParams captures the decoding parameters used to produce a
// candidate. They are recorded in provenance so a run can be audited
// and, if needed, replayed.
type SamplingParams struct {
	// Temperature controls decoding randomness (0.0-2.0).
	Temperature float64 `json:"temperature"`

	// TopP is the nucleus sampling cutoff (0.0-1.0).
	TopP float64 `json:"top_p"`

	// Seed is the sampling seed, when the backend supports one.
	// Zero means the backend chose its own.
	Seed int64 `json:"seed,omitempty"`

	// MaxTokens bounds the length of the generated content.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Provenance records where a candidate came from and what it cost.
type Provenance struct {
	// GeneratorID identifies the generation backend that produced the
	// candidate (e.g. "openai/gpt-4o").
	GeneratorID string `json:"generator_id"`

	// Params are the sampling parameters used for this candidate.
	Params SamplingParams `json:"params"`

	// TokensUsed is the total token count consumed producing the candidate.
	TokensUsed int `json:"tokens_used,omitempty"`

	// Latency measures how long the generation call took.
	Latency time.Duration `json:"latency,omitempty"`
}

// Candidate is one proposed answer with provenance. A Candidate is
// immutable once created: attaching a verification result produces a new
// Candidate via WithResult rather than mutating in place.
type Candidate struct {
	// ID uniquely identifies this candidate within a run.
	ID string `json:"id"`

	// Content is the answer text. For tree searches it may be a partial
	// path that a later generation call extends.
	Content string `json:"content"`

	// Complete reports whether the generator marked this candidate as a
	// finished answer. Flat decoding always produces complete candidates;
	// beam search produces partial paths until the generator terminates
	// them.
	Complete bool `json:"complete"`

	// Provenance records the generator identity, sampling parameters,
	// and cost of this candidate.
	Provenance Provenance `json:"provenance"`

	// Result is the verification result attached to this candidate,
	// or nil if it has not been scored yet.
	Result *VerificationResult `json:"result,omitempty"`
}

// WithResult returns a copy of the candidate with the verification result
// attached. The receiver is not modified.
func (c Candidate) WithResult(r VerificationResult) Candidate {
	c.Result = &r
	return c
}

// Score returns the candidate's verifier score, or 0 if the candidate has
// not been scored or its verification errored.
func (c Candidate) Score() float64 {
	if c.Result == nil || c.Result.Error {
		return 0
	}
	return c.Result.Score
}

// Scored reports whether the candidate carries a usable verification
// result (present and not errored).
func (c Candidate) Scored() bool {
	return c.Result != nil && !c.Result.Error
}

// VerificationResult is the outcome of scoring one candidate.
// Invariant: Score is always within the verifier's declared range; when
// verification itself fails, Score is the worst value (0) and Error is
// true, never omitted.
type VerificationResult struct {
	// VerifierID identifies the verifier that produced this result.
	VerifierID string `json:"verifier_id"`

	// Score is the bounded numeric score. The range is declared by the
	// verifier; the default is [0, 1].
	Score float64 `json:"score"`

	// Pass indicates whether the candidate passed the verifier's
	// criteria.
	Pass bool `json:"pass"`

	// Rationale explains the score in human-readable form.
	Rationale string `json:"rationale,omitempty"`

	// Error is true when verification itself failed (timeout, malformed
	// input, transport error). The score is then 0 by construction.
	Error bool `json:"error"`
}

// NewErrorResult builds the canonical result for a failed verification:
// worst score, error flag set, rationale describing the failure.
func NewErrorResult(verifierID string, err error) VerificationResult {
	return VerificationResult{
		VerifierID: verifierID,
		Score:      0,
		Pass:       false,
		Rationale:  fmt.Sprintf("verification failed: %v", err),
		Error:      true,
	}
}
