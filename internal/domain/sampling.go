package domain

// Difficulty is the coarse difficulty level supplied by an external
// difficulty estimator. It selects the adaptive sampler's N-bounds.
type Difficulty string

// Supported difficulty levels.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the supported difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// StopReason explains why an adaptive sampling run terminated.
type StopReason string

// Stop reasons recorded in SamplingState.
const (
	// StopConsensus means agreement reached the threshold with at least
	// the minimum number of candidates generated.
	StopConsensus StopReason = "consensus"

	// StopMaxReached means the run hit the maximum candidate count
	// without reaching consensus.
	StopMaxReached StopReason = "max_reached"

	// StopBudget means the generation budget ran out before consensus
	// or the maximum candidate count.
	StopBudget StopReason = "budget_exceeded"
)

// SamplingState tracks one adaptive sampling run. It is created at the
// start of a run, mutated only by the adaptive sampler, and discarded
// when the run ends.
type SamplingState struct {
	// MinCandidates is the floor below which the run never stops, even
	// if early agreement is spuriously perfect.
	MinCandidates int `json:"min_candidates"`

	// MaxCandidates is the hard cap on generated candidates.
	MaxCandidates int `json:"max_candidates"`

	// BatchSize is the number of candidates generated per batch after
	// the initial batch.
	BatchSize int `json:"batch_size"`

	// AgreementHistory is the ordered sequence of per-batch agreement
	// scores observed during the run.
	AgreementHistory []float64 `json:"agreement_history"`

	// ActualN is the number of candidates actually generated.
	ActualN int `json:"actual_n"`

	// EarlyStopped is true when the run stopped on consensus before
	// reaching MaxCandidates.
	EarlyStopped bool `json:"early_stopped"`

	// Reason records why the run stopped.
	Reason StopReason `json:"stop_reason"`

	// Report tallies boundary calls and token usage across the run.
	Report RunReport `json:"report"`
}
