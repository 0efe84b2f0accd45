package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
	"github.com/ahrav/go-quorum/internal/testutils"
)

func TestDifficultyEstimator(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     domain.Difficulty
		wantErr  bool
	}{
		{"plain json", `{"difficulty": "easy"}`, domain.DifficultyEasy, false},
		{"hard", `{"difficulty": "hard"}`, domain.DifficultyHard, false},
		{"mixed case", `{"difficulty": "Medium"}`, domain.DifficultyMedium, false},
		{"fenced json", "```json\n{\"difficulty\": \"medium\"}\n```", domain.DifficultyMedium, false},
		{"json inside prose", `I would say {"difficulty": "easy"} overall`, domain.DifficultyEasy, false},
		{"unknown class", `{"difficulty": "brutal"}`, "", true},
		{"not json", "it is quite hard", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutils.NewMockLLMClient("test-model")
			client.AddResponse(testutils.MockResponse{Response: tt.response})

			e, err := NewDifficultyEstimator(client)
			require.NoError(t, err)

			got, err := e.EstimateDifficulty(context.Background(), "how many moons does Mars have?")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ports.ErrInvalidResponse), "unusable output wraps the sentinel")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "difficulty mismatch")
		})
	}
}

func TestDifficultyEstimator_ClientFailure(t *testing.T) {
	client := testutils.NewMockLLMClient("test-model")
	client.AddResponse(testutils.MockResponse{Err: ports.ErrRateLimited})

	e, err := NewDifficultyEstimator(client)
	require.NoError(t, err)

	_, err = e.EstimateDifficulty(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrRateLimited), "transport errors pass through")
}

func TestNewDifficultyEstimator_NilClient(t *testing.T) {
	_, err := NewDifficultyEstimator(nil)
	assert.Error(t, err, "nil client must fail construction")
}

func TestConfidenceEstimator(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
		wantErr  bool
	}{
		{"plain json", `{"confidence": 0.85}`, 0.85, false},
		{"boundary low", `{"confidence": 0.0}`, 0.0, false},
		{"boundary high", `{"confidence": 1.0}`, 1.0, false},
		{"fenced json", "```json\n{\"confidence\": 0.4}\n```", 0.4, false},
		{"above one", `{"confidence": 1.4}`, 0, true},
		{"negative", `{"confidence": -0.2}`, 0, true},
		{"not json", "pretty confident", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutils.NewMockLLMClient("test-model")
			client.AddResponse(testutils.MockResponse{Response: tt.response})

			e, err := NewConfidenceEstimator(client)
			require.NoError(t, err)

			got, err := e.EstimateConfidence(context.Background(), "q", domain.Candidate{Content: "A"})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ports.ErrInvalidResponse), "unusable output wraps the sentinel")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "confidence mismatch")
		})
	}
}

func TestNewConfidenceEstimator_NilClient(t *testing.T) {
	_, err := NewConfidenceEstimator(nil)
	assert.Error(t, err, "nil client must fail construction")
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"anonymous fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around", `sure: {"a": 1} done`, `{"a": 1}`},
		{"no object", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONObject(tt.response), "extraction mismatch")
		})
	}
}
