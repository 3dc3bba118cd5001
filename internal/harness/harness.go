// Package harness provides a test harness framework for running DSL
// programs through the local compile/execute pipeline and checking their
// outcomes against declared expectations.
package harness

import (
	"context"
	"fmt"
	"time"

	"kyc-dsl-core/internal/dslcore/pipeline"
)

// Suite represents a test suite with multiple test cases.
type Suite struct {
	Name        string
	Description string
	Cases       []Case
	Setup       func(ctx context.Context, e *pipeline.Engine) error
	Teardown    func(ctx context.Context, e *pipeline.Engine) error
}

// Case represents a single test case.
type Case struct {
	Name        string
	Description string
	DSL         string
	Expect      Expectation
	Skip        bool
	SkipReason  string
}

// Expectation defines what we expect from execution.
type Expectation struct {
	Success       bool
	ErrorContains *string
	BindingCount  *int
	Validate      func(*Outcome) error
}

// Outcome is the harness's view of one case's run: whatever the pipeline
// returned, flattened into a shape expectations can check without
// depending on the executor package directly.
type Outcome struct {
	Success  bool
	Bindings map[string]any
	Errors   []string
}

// Result captures test execution results.
type Result struct {
	Suite      string        `json:"suite,omitempty"`
	Case       string        `json:"case"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Outcome    *Outcome      `json:"outcome,omitempty"`
	Skipped    bool          `json:"skipped,omitempty"`
	SkipReason string        `json:"skip_reason,omitempty"`
}

// SuiteResult aggregates results for a suite.
type SuiteResult struct {
	Name     string        `json:"name"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
	Results  []Result      `json:"results"`
}

// Runner executes test suites against a pipeline engine.
type Runner struct {
	engine  *pipeline.Engine
	verbose bool
}

// NewRunner creates a new test runner over engine.
func NewRunner(engine *pipeline.Engine) *Runner {
	return &Runner{engine: engine}
}

// WithVerbose enables verbose output.
func (r *Runner) WithVerbose(v bool) *Runner {
	r.verbose = v
	return r
}

// Run executes a suite and returns results.
func (r *Runner) Run(ctx context.Context, suite Suite) (*SuiteResult, error) {
	start := time.Now()
	result := &SuiteResult{Name: suite.Name}

	if suite.Setup != nil {
		if err := suite.Setup(ctx, r.engine); err != nil {
			return nil, fmt.Errorf("setup failed: %w", err)
		}
	}

	for _, tc := range suite.Cases {
		tcResult := r.runCase(ctx, tc)
		result.Results = append(result.Results, tcResult)
		switch {
		case tcResult.Skipped:
			result.Skipped++
		case tcResult.Passed:
			result.Passed++
		default:
			result.Failed++
		}
	}

	if suite.Teardown != nil {
		if err := suite.Teardown(ctx, r.engine); err != nil {
			fmt.Printf("teardown warning: %v\n", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) runCase(ctx context.Context, tc Case) Result {
	start := time.Now()
	result := Result{Case: tc.Name}

	if tc.Skip {
		result.Skipped = true
		result.SkipReason = tc.SkipReason
		return result
	}

	out, diags, err := r.engine.Run(ctx, tc.DSL)
	result.Duration = time.Since(start)

	outcome := &Outcome{}
	if diags != nil {
		for _, d := range diags.Items() {
			outcome.Errors = append(outcome.Errors, d.Error())
		}
	}
	if out != nil {
		outcome.Success = true
		outcome.Bindings = out.Symbols
	} else if err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
	}
	result.Outcome = outcome

	if outcome.Success != tc.Expect.Success {
		result.Error = fmt.Sprintf("expected success=%v, got %v (err: %v)", tc.Expect.Success, outcome.Success, err)
		result.Passed = false
		return result
	}

	if tc.Expect.ErrorContains != nil {
		found := false
		for _, e := range outcome.Errors {
			if contains(e, *tc.Expect.ErrorContains) {
				found = true
				break
			}
		}
		if !found {
			result.Error = fmt.Sprintf("expected error containing %q", *tc.Expect.ErrorContains)
			result.Passed = false
			return result
		}
	}

	if tc.Expect.BindingCount != nil {
		if len(outcome.Bindings) != *tc.Expect.BindingCount {
			result.Error = fmt.Sprintf("expected %d bindings, got %d", *tc.Expect.BindingCount, len(outcome.Bindings))
			result.Passed = false
			return result
		}
	}

	if tc.Expect.Validate != nil {
		if err := tc.Expect.Validate(outcome); err != nil {
			result.Error = err.Error()
			result.Passed = false
			return result
		}
	}

	result.Passed = true
	return result
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
