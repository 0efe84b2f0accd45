package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidate_WithResult_DoesNotMutateReceiver(t *testing.T) {
	original := Candidate{ID: "c1", Content: "42", Complete: true}

	scored := original.WithResult(VerificationResult{
		VerifierID: "exact",
		Score:      0.9,
		Pass:       true,
	})

	require.NotNil(t, scored.Result, "copy should carry the result")
	assert.Equal(t, 0.9, scored.Result.Score, "attached score mismatch")
	assert.Nil(t, original.Result, "receiver must stay unscored")
}

func TestCandidate_WithResult_CopiesValue(t *testing.T) {
	c := Candidate{ID: "c1"}
	r := VerificationResult{VerifierID: "exact", Score: 0.5}

	scored := c.WithResult(r)
	r.Score = 0.1

	assert.Equal(t, 0.5, scored.Result.Score, "attached result should not alias the caller's value")
}

func TestCandidate_Score(t *testing.T) {
	tests := []struct {
		name   string
		cand   Candidate
		want   float64
		scored bool
	}{
		{
			name:   "unscored candidate",
			cand:   Candidate{ID: "c1"},
			want:   0,
			scored: false,
		},
		{
			name: "scored candidate",
			cand: Candidate{ID: "c2", Result: &VerificationResult{Score: 0.75}},
			want: 0.75, scored: true,
		},
		{
			name: "errored verification scores zero",
			cand: Candidate{ID: "c3", Result: &VerificationResult{Score: 0.9, Error: true}},
			want: 0, scored: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cand.Score(), "Score mismatch")
			assert.Equal(t, tt.scored, tt.cand.Scored(), "Scored mismatch")
		})
	}
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("judge", errors.New("transport closed"))

	assert.Equal(t, "judge", result.VerifierID, "verifier ID mismatch")
	assert.Zero(t, result.Score, "failed verification must score worst")
	assert.False(t, result.Pass, "failed verification must not pass")
	assert.True(t, result.Error, "error flag must be set")
	assert.Contains(t, result.Rationale, "transport closed", "rationale should describe the failure")
}
