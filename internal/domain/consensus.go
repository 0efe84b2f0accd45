package domain

// ConsensusResult is the outcome of reducing a candidate set to one
// decision via majority voting.
type ConsensusResult struct {
	// Selected is the winning candidate, or nil when the input set was
	// empty or every candidate's verification errored out.
	Selected *Candidate `json:"selected,omitempty"`

	// AgreementScore is max_group_size / total_candidates, in [0, 1].
	AgreementScore float64 `json:"agreement_score"`

	// Votes maps each normalized answer key to the number of candidates
	// that produced it. Insertion order is irrelevant.
	Votes map[string]int `json:"votes"`

	// ConsensusReached is true when AgreementScore meets or exceeds the
	// configured threshold.
	ConsensusReached bool `json:"consensus_reached"`

	// TieBreak records which tie-break rule selected the winner when
	// multiple groups shared the maximum size; empty when no tie occurred.
	TieBreak string `json:"tie_break,omitempty"`
}

// RunReport summarizes resource consumption for one search or sampling
// run: how many boundary calls were made and what they cost.
type RunReport struct {
	// GenerationCalls counts calls made to the generation boundary.
	GenerationCalls int `json:"generation_calls"`

	// GenerationFailures counts generation calls that returned a typed
	// error and were absorbed as batch failures.
	GenerationFailures int `json:"generation_failures"`

	// VerificationCalls counts verifier invocations.
	VerificationCalls int `json:"verification_calls"`

	// VerificationErrors counts verifier results with the error flag set.
	VerificationErrors int `json:"verification_errors"`

	// TokensUsed is the cumulative token count across all generation
	// calls, when the backend reports usage.
	TokensUsed int `json:"tokens_used"`
}
