package domain

// Action is the output mode chosen for a finished answer.
type Action string

// Actions a calibration or selective-generation decision can route to.
const (
	// ActionDirect surfaces the answer as-is.
	ActionDirect Action = "direct"

	// ActionWithVerification surfaces the answer together with a
	// verification pass over it.
	ActionWithVerification Action = "with_verification"

	// ActionWithCitations surfaces the answer with supporting citations.
	ActionWithCitations Action = "with_citations"

	// ActionAbstain withholds the answer.
	ActionAbstain Action = "abstain"

	// ActionEscalate hands the query to a human or a stronger system.
	ActionEscalate Action = "escalate"

	// ActionProvideOptions surfaces multiple valid answers instead of
	// forcing a single one. Used for aleatoric uncertainty.
	ActionProvideOptions Action = "provide_options"

	// ActionSuggestSource points the user at where the missing
	// knowledge could be found. Used for low epistemic uncertainty.
	ActionSuggestSource Action = "suggest_source"

	// ActionAnswerDirectly answers without qualification. Used when the
	// uncertainty classifier finds no meaningful uncertainty.
	ActionAnswerDirectly Action = "answer_directly"
)

// CalibrationDecision is the routing outcome for a finished answer based
// on calibrated confidence.
type CalibrationDecision struct {
	// Confidence is the estimate the decision was based on, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Chosen is the selected output mode.
	Chosen Action `json:"action"`

	// Reasoning explains the routing in human-readable form.
	Reasoning string `json:"reasoning"`
}

// EVDecision is the outcome of an expected-value answer/abstain decision.
type EVDecision struct {
	// Confidence is the estimate the decision was based on, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Chosen is either ActionDirect (answer) or ActionAbstain.
	Chosen Action `json:"action"`

	// EVAnswer is confidence*reward - (1-confidence)*penalty.
	EVAnswer float64 `json:"ev_answer"`

	// EVAbstain is always 0 by definition.
	EVAbstain float64 `json:"ev_abstain"`

	// Reasoning explains the decision in human-readable form.
	Reasoning string `json:"reasoning"`
}

// UncertaintyKind distinguishes the nature of uncertainty in a
// query/answer pair.
type UncertaintyKind string

// Uncertainty kinds.
const (
	// UncertaintyAleatoric marks inherent ambiguity: multiple valid
	// answers exist and more computation will not collapse them.
	UncertaintyAleatoric UncertaintyKind = "aleatoric"

	// UncertaintyEpistemic marks missing knowledge: more information
	// would resolve the question.
	UncertaintyEpistemic UncertaintyKind = "epistemic"

	// UncertaintyNone marks a confidently answerable query.
	UncertaintyNone UncertaintyKind = "certain"
)

// UncertaintyAssessment classifies a query/answer pair and recommends an
// action.
type UncertaintyAssessment struct {
	// Kind is the classified uncertainty type.
	Kind UncertaintyKind `json:"kind"`

	// High is true for high residual uncertainty within the kind.
	// It only affects the epistemic action mapping.
	High bool `json:"high"`

	// Recommended is the action the classifier maps the kind to.
	Recommended Action `json:"recommended"`

	// Reasoning explains the classification in human-readable form.
	Reasoning string `json:"reasoning"`
}
