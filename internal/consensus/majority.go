// Package consensus reduces a candidate set to one decision via majority
// voting over normalized answers.
package consensus

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// foldCaser is a package-level Unicode case folder shared across calls.
var foldCaser = cases.Fold()

// Normalizer maps candidate content to the key it votes under.
type Normalizer func(string) string

// DefaultNormalizer trims surrounding whitespace and applies
// Unicode-aware case folding.
func DefaultNormalizer(s string) string {
	return foldCaser.String(strings.TrimSpace(s))
}

// Tie-break notes recorded in ConsensusResult.TieBreak.
const (
	// TieBreakScore means the winning group was chosen for its highest
	// average verifier score among tied groups.
	TieBreakScore = "highest_avg_score"

	// TieBreakFirst means the winning group was the first-seen among
	// tied groups (used when no scores are attached).
	TieBreakFirst = "first_seen"
)

// Config controls majority voting.
type Config struct {
	// Threshold is the agreement score at or above which consensus is
	// declared.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"min=0.0,max=1.0"`
}

// DefaultConfig returns a Config with the conventional self-consistency
// threshold.
func DefaultConfig() Config {
	return Config{Threshold: 0.5}
}

// MajorityVote groups candidates by normalized answer and selects the
// most-repeated one. It is stateless and safe for concurrent use.
type MajorityVote struct {
	config    Config
	normalize Normalizer
}

// NewMajorityVote creates a MajorityVote aggregator. A nil normalizer
// selects DefaultNormalizer. Configuration is validated eagerly; an
// out-of-range threshold fails construction.
func NewMajorityVote(config Config, normalize Normalizer) (*MajorityVote, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if normalize == nil {
		normalize = DefaultNormalizer
	}
	return &MajorityVote{config: config, normalize: normalize}, nil
}

// Threshold returns the configured consensus threshold.
func (mv *MajorityVote) Threshold() float64 { return mv.config.Threshold }

// group is one voting bucket: the candidates that produced the same
// normalized answer, in first-seen order.
type group struct {
	key     string
	members []int // indices into the candidate slice
	order   int   // first-seen position
}

// Aggregate computes the consensus over candidates. Candidates whose
// verification errored are excluded from voting; when every candidate
// errored (or the list is empty) the result has a nil selection, a zero
// agreement score, and an empty vote distribution.
//
// Aggregate is a pure function of its input: calling it twice on the
// same list yields an identical result.
func (mv *MajorityVote) Aggregate(candidates []domain.Candidate) domain.ConsensusResult {
	votes := make(map[string]int)
	groups := make(map[string]*group)
	ordered := make([]*group, 0, len(candidates))

	voters := 0
	for i, c := range candidates {
		if c.Result != nil && c.Result.Error {
			continue
		}
		voters++
		key := mv.normalize(c.Content)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, order: len(ordered)}
			groups[key] = g
			ordered = append(ordered, g)
		}
		g.members = append(g.members, i)
		votes[key]++
	}

	if voters == 0 {
		return domain.ConsensusResult{
			AgreementScore:   0,
			Votes:            votes,
			ConsensusReached: false,
		}
	}

	maxSize := 0
	for _, g := range ordered {
		if len(g.members) > maxSize {
			maxSize = len(g.members)
		}
	}

	tied := make([]*group, 0, 1)
	for _, g := range ordered {
		if len(g.members) == maxSize {
			tied = append(tied, g)
		}
	}

	winner, note := mv.breakTie(tied, candidates)

	// The representative is the highest-scoring member when scores are
	// present, otherwise the first member of the winning group.
	rep := candidates[winner.members[0]]
	for _, idx := range winner.members[1:] {
		if candidates[idx].Scored() && candidates[idx].Score() > rep.Score() {
			rep = candidates[idx]
		}
	}

	agreement := float64(maxSize) / float64(voters)
	return domain.ConsensusResult{
		Selected:         &rep,
		AgreementScore:   agreement,
		Votes:            votes,
		ConsensusReached: agreement >= mv.config.Threshold,
		TieBreak:         note,
	}
}

// breakTie picks the winning group among groups tied at the maximum
// size. Preference goes to the group with the highest average verifier
// score when any tied group carries scores; otherwise the first-seen
// group wins. The returned note is empty when there was no tie.
func (mv *MajorityVote) breakTie(tied []*group, candidates []domain.Candidate) (*group, string) {
	if len(tied) == 1 {
		return tied[0], ""
	}

	bestIdx := 0
	bestAvg := groupAvgScore(tied[0], candidates)
	anyScored := bestAvg >= 0
	for i := 1; i < len(tied); i++ {
		avg := groupAvgScore(tied[i], candidates)
		if avg >= 0 {
			anyScored = true
		}
		if avg > bestAvg {
			bestAvg = avg
			bestIdx = i
		}
	}

	if anyScored {
		return tied[bestIdx], TieBreakScore
	}

	// No scores anywhere: groups are already in first-seen order.
	return tied[0], TieBreakFirst
}

// groupAvgScore returns the mean verifier score of a group's scored
// members, or -1 when no member carries a usable score.
func groupAvgScore(g *group, candidates []domain.Candidate) float64 {
	sum := 0.0
	n := 0
	for _, idx := range g.members {
		if candidates[idx].Scored() {
			sum += candidates[idx].Score()
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return sum / float64(n)
}
