package verifiers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

var _ ports.Verifier = (*ToolVerifier)(nil)

// CheckStatus is the outcome class of one external check.
type CheckStatus string

// Check outcome classes.
const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// CheckOutcome is one check's verdict on a candidate.
type CheckOutcome struct {
	// Status classifies the result.
	Status CheckStatus

	// Detail describes what the check found.
	Detail string

	// Err records a check that could not run at all. A non-nil Err is
	// treated as CheckFail.
	Err error
}

// Check is one external validation step: a static analyzer, a unit-test
// run, a linter. Run must be safe for concurrent use.
type Check struct {
	// Name identifies the check in rationales.
	Name string

	// Run executes the check against a candidate.
	Run func(ctx context.Context, candidate domain.Candidate) CheckOutcome
}

// Severity aggregation strategies.
const (
	// AggregateWorst takes the maximum severity across checks.
	AggregateWorst = "worst"

	// AggregateMean averages severities across checks.
	AggregateMean = "mean"
)

// SeverityMap maps check outcomes to severities. Severity polarity is
// "higher is worse": a pass maps to low severity, a failure to high.
// The verifier's final score inverts this to the standard "higher is
// better" [0, 1] contract: score = 1 - severity.
type SeverityMap struct {
	// Pass is the severity of a passing check (low, default 0.1).
	Pass float64 `yaml:"pass" json:"pass" validate:"min=0.0,max=1.0"`

	// Warn is the severity of a warning (medium, default 0.5).
	Warn float64 `yaml:"warn" json:"warn" validate:"min=0.0,max=1.0"`

	// Fail is the severity of a failure (high, default 0.8).
	Fail float64 `yaml:"fail" json:"fail" validate:"min=0.0,max=1.0"`
}

// ToolConfig controls tool/process-based verification.
type ToolConfig struct {
	// Severities is the outcome-to-severity mapping table.
	Severities SeverityMap `yaml:"severities" json:"severities"`

	// Aggregation combines multiple check severities: worst (default)
	// or mean.
	Aggregation string `yaml:"aggregation" json:"aggregation" validate:"required,oneof=worst mean"`

	// PassMax is the maximum aggregate severity that still counts as a
	// pass.
	PassMax float64 `yaml:"pass_max" json:"pass_max" validate:"min=0.0,max=1.0"`
}

// DefaultToolConfig returns the documented severity table (pass 0.1,
// warn 0.5, fail 0.8) with worst-severity aggregation.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		Severities:  SeverityMap{Pass: 0.1, Warn: 0.5, Fail: 0.8},
		Aggregation: AggregateWorst,
		PassMax:     0.4,
	}
}

// ToolVerifier scores candidates by running external checks and folding
// their outcomes through the severity table. A check that panics or
// errors counts as a failure, never as a verifier error; the verifier
// itself only errors when it has no checks to run.
type ToolVerifier struct {
	name   string
	config ToolConfig
	checks []Check
}

// NewToolVerifier creates a ToolVerifier, failing fast on invalid
// configuration or an empty check list.
func NewToolVerifier(name string, config ToolConfig, checks []Check) (*ToolVerifier, error) {
	if name == "" {
		return nil, ErrEmptyVerifierName
	}
	if len(checks) == 0 {
		return nil, domain.NewConfigError("tool verifier", "checks", "at least one check is required")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	for _, c := range checks {
		if c.Run == nil {
			return nil, domain.NewConfigError("tool verifier", "checks", fmt.Sprintf("check %q has no Run function", c.Name))
		}
	}
	return &ToolVerifier{name: name, config: config, checks: checks}, nil
}

// Name returns the verifier's identifier.
func (tv *ToolVerifier) Name() string { return tv.name }

// ScoreRange declares the [0, 1] score contract.
func (tv *ToolVerifier) ScoreRange() (float64, float64) { return 0, 1 }

// SupportsStreaming is false: checks need the complete candidate.
func (tv *ToolVerifier) SupportsStreaming() bool { return false }

// Verify runs every check against the candidate and aggregates their
// severities per configuration.
func (tv *ToolVerifier) Verify(ctx context.Context, candidate domain.Candidate, _ ports.VerificationContext) domain.VerificationResult {
	if err := ctx.Err(); err != nil {
		return domain.NewErrorResult(tv.name, err)
	}

	severities := make([]float64, 0, len(tv.checks))
	details := make([]string, 0, len(tv.checks))
	for _, check := range tv.checks {
		outcome := tv.runCheck(ctx, check, candidate)
		severities = append(severities, tv.severityOf(outcome))
		details = append(details, fmt.Sprintf("%s: %s (%s)", check.Name, outcome.Status, outcome.Detail))
	}

	severity := tv.aggregate(severities)
	return domain.VerificationResult{
		VerifierID: tv.name,
		Score:      1 - severity,
		Pass:       severity <= tv.config.PassMax,
		Rationale:  strings.Join(details, "; "),
	}
}

// runCheck executes one check, absorbing panics as failures so no check
// can break the verifier boundary.
func (tv *ToolVerifier) runCheck(ctx context.Context, check Check, candidate domain.Candidate) (outcome CheckOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = CheckOutcome{
				Status: CheckFail,
				Detail: fmt.Sprintf("check panicked: %v", r),
			}
		}
	}()
	outcome = check.Run(ctx, candidate)
	if outcome.Err != nil {
		outcome.Status = CheckFail
		if outcome.Detail == "" {
			outcome.Detail = outcome.Err.Error()
		}
	}
	return outcome
}

// severityOf maps an outcome through the severity table.
func (tv *ToolVerifier) severityOf(outcome CheckOutcome) float64 {
	switch outcome.Status {
	case CheckPass:
		return tv.config.Severities.Pass
	case CheckWarn:
		return tv.config.Severities.Warn
	default:
		return tv.config.Severities.Fail
	}
}

// aggregate folds severities per the configured strategy.
func (tv *ToolVerifier) aggregate(severities []float64) float64 {
	if tv.config.Aggregation == AggregateMean {
		sum := 0.0
		for _, s := range severities {
			sum += s
		}
		return sum / float64(len(severities))
	}
	worst := severities[0]
	for _, s := range severities[1:] {
		if s > worst {
			worst = s
		}
	}
	return worst
}
