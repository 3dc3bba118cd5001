// Package pipeline wires Parse -> Plan -> Execute into the single entry
// point both the CLI and the harness drive a DSL program through.
package pipeline

import (
	"context"
	"fmt"

	"kyc-dsl-core/internal/dslcore/diag"
	"kyc-dsl-core/internal/dslcore/executor"
	"kyc-dsl-core/internal/dslcore/parser"
	"kyc-dsl-core/internal/dslcore/planner"
	"kyc-dsl-core/internal/dslcore/registry"
	"kyc-dsl-core/internal/store"
)

// Engine bundles the immutable, process-lifetime components a program run
// needs: the Verb Registry and the Custom Handlers table. Both are built
// once at startup, per their documented immutability, and shared freely
// across concurrent runs.
type Engine struct {
	Registry *registry.Registry
	Handlers *executor.HandlerTable
	Store    *store.Store
}

// CompileResult is the outcome of running a program through the parser
// and planner without executing it: the plan (when one was emitted) and
// the merged parse and plan diagnostics. Run compiles through it before
// executing.
type CompileResult struct {
	Plan        *planner.Plan
	Diagnostics *diag.List
}

// Compile parses and plans source without executing it.
func (e *Engine) Compile(source string) (*CompileResult, error) {
	prog, parseDiags := parser.Parse(source)
	if parseDiags.HasErrors() {
		return &CompileResult{Diagnostics: parseDiags}, fmt.Errorf("pipeline: parse failed with %d diagnostic(s)", parseDiags.Len())
	}

	plan, planDiags := planner.Plan(prog, e.Registry)
	merged := mergeDiagnostics(parseDiags, planDiags)
	if plan == nil || merged.HasErrors() {
		return &CompileResult{Plan: plan, Diagnostics: merged}, fmt.Errorf("pipeline: plan failed with %d diagnostic(s)", merged.Len())
	}
	return &CompileResult{Plan: plan, Diagnostics: merged}, nil
}

// Run compiles and executes source against the engine's store in a
// single transaction, returning the final symbol table and per-op
// results on success.
func (e *Engine) Run(ctx context.Context, source string) (*executor.Outcome, *diag.List, error) {
	compiled, err := e.Compile(source)
	if err != nil {
		return nil, compiled.Diagnostics, err
	}

	outcome, err := executor.Run(ctx, compiled.Plan, e.Store, e.Handlers)
	if err != nil {
		return nil, compiled.Diagnostics, err
	}
	return outcome, compiled.Diagnostics, nil
}

func mergeDiagnostics(lists ...*diag.List) *diag.List {
	out := &diag.List{}
	for _, l := range lists {
		if l == nil {
			continue
		}
		for _, d := range l.Items() {
			out.Add(d)
		}
	}
	return out
}
