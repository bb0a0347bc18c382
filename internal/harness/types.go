package harness

// Result is the outcome of one scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`

	// Request is the explained vector request, when compilation succeeded.
	Request map[string]any `json:"request,omitempty"`

	// Skeleton and Cypher are the graph template and its rendering.
	Skeleton string `json:"skeleton,omitempty"`
	Cypher   string `json:"cypher,omitempty"`

	// RenderError explains why Cypher is empty after a successful compile.
	RenderError string `json:"render_error,omitempty"`

	// Err is the compile error, if any.
	Err error `json:"-"`

	// Snapshot is the canonical, golden-comparable view of the outcome.
	Snapshot map[string]any `json:"-"`
}

// NewResult creates a passing result for scenario.
func NewResult(scenario *Scenario) *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Snapshot: map[string]any{
			"scenario": scenario.Name,
			"backend":  scenario.Backend,
		},
	}
}

// AddError records a failed assertion and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
