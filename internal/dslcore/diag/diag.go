// Package diag implements the typed, locatable diagnostics taxonomy shared
// by the parser, planner, and executor.
package diag

import (
	"fmt"

	"kyc-dsl-core/internal/dslcore/ast"
)

// Severity classifies a diagnostic's impact on plan emission.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
	SeverityInfo  Severity = "info"
)

// Code names one of the error kinds from the error-handling design.
type Code string

const (
	CodeSyntaxError         Code = "SyntaxError"
	CodeUndefinedSymbol     Code = "UndefinedSymbol"
	CodeMissingArgument     Code = "MissingArgument"
	CodeUnresolvedReference Code = "UnresolvedReference"
	CodeCyclicDependency    Code = "CyclicDependency"
	CodePreconditionFailed  Code = "PreconditionFailed"
	CodeStoreConflict       Code = "StoreConflict"
	CodeExternalFailure     Code = "ExternalFailure"
	CodeInvariantViolation  Code = "InvariantViolation"
	CodeUnknownArgument     Code = "UnknownArgument"
	CodeDuplicateArgument   Code = "DuplicateArgument"
	CodeReorder             Code = "Reorder"
)

// Diagnostic is a single typed, locatable message. It implements error so it
// can flow through ordinary Go error-handling paths when a single diagnostic
// must be returned on its own (executor/custom-handler failures); the
// parser and planner instead collect Diagnostic values into a List.
type Diagnostic struct {
	Code     Code
	Severity Severity
	Message  string
	Pos      *ast.Position // nil when no source location applies
	// OpIndices names every op implicated in a multi-op diagnostic (cycles).
	OpIndices []int
}

func (d *Diagnostic) Error() string {
	if d.Pos != nil {
		return fmt.Sprintf("%s at %s: %s", d.Code, d.Pos, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// New builds a Diagnostic with no source position.
func New(code Code, severity Severity, message string) *Diagnostic {
	return &Diagnostic{Code: code, Severity: severity, Message: message}
}

// At builds a Diagnostic carrying a source position.
func At(code Code, severity Severity, message string, pos ast.Position) *Diagnostic {
	p := pos
	return &Diagnostic{Code: code, Severity: severity, Message: message, Pos: &p}
}

// List is an ordered collection of diagnostics accumulated during analysis.
// Parser and planner errors are never short-circuited: every diagnostic
// found in a pass is appended to the same List and returned together.
type List struct {
	items []*Diagnostic
}

func (l *List) Add(d *Diagnostic) { l.items = append(l.items, d) }

func (l *List) Items() []*Diagnostic { return l.items }

func (l *List) Len() int { return len(l.items) }

// HasErrors reports whether any diagnostic in the list has Error severity.
func (l *List) HasErrors() bool {
	for _, d := range l.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// InvariantViolation is the single diagnostic kind permitted to panic. It
// wraps the underlying Diagnostic so recover() sites can convert it back.
type InvariantViolation struct {
	Diagnostic *Diagnostic
}

func (e *InvariantViolation) Error() string { return e.Diagnostic.Error() }

// PanicInvariant raises an InvariantViolation panic carrying a
// CodeInvariantViolation diagnostic with the given message. Callers at the
// top of the executor must recover and convert it back into a returned
// error; every other diagnostic kind is a value, never a panic.
func PanicInvariant(message string) {
	panic(&InvariantViolation{Diagnostic: New(CodeInvariantViolation, SeverityError, message)})
}
