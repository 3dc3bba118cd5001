package executor

import (
	"context"

	"kyc-dsl-core/internal/dslcore/ast"
	"kyc-dsl-core/internal/store"
)

// CustomHandler implements one verb whose behavior cannot be expressed as a
// single generic CRUD pattern: graph traversal, an external-service call, a
// multi-table state-machine transition, or a specialized result type.
//
// The shape — domain()/verb()/rationale()/execute(call, ctx, store) — is
// grounded directly on the CustomOperation trait in the original
// ownership-analysis source this specification was distilled from: every
// handler documents why it cannot be expressed as a generic behavior,
// which is exactly the candidacy policy a Custom verb must satisfy.
type CustomHandler interface {
	// Domain names the verb's domain, e.g. "ubo".
	Domain() string
	// Verb names the verb's local name, e.g. "trace-chains".
	Verb() string
	// Rationale documents why this verb is Custom rather than generic.
	Rationale() string
	// Execute runs the handler. It must perform all store mutations within
	// the transaction carried by tx and must never commit or roll back
	// independently; the executor owns the transaction's lifecycle.
	Execute(ctx context.Context, call *ast.VerbCall, args ResolvedArgs, ectx *Context, tx store.Tx) (Result, error)
}

// QualifiedName returns "domain.verb" for a CustomHandler.
func QualifiedName(h CustomHandler) string { return h.Domain() + "." + h.Verb() }

// HandlerTable is the immutable Custom Handlers table: a second keyed
// collection, alongside the Verb Registry, mapping verb names to the
// function values implementing them. It is built once at startup and never
// mutated afterward, exactly like the Verb Registry it complements.
type HandlerTable struct {
	byName map[string]CustomHandler
}

// NewHandlerTable builds an immutable HandlerTable. Duplicate registrations
// for the same (domain, verb) are a construction-time error.
func NewHandlerTable(handlers ...CustomHandler) (*HandlerTable, error) {
	t := &HandlerTable{byName: make(map[string]CustomHandler, len(handlers))}
	for _, h := range handlers {
		qn := QualifiedName(h)
		if _, exists := t.byName[qn]; exists {
			return nil, &DuplicateHandlerError{QualifiedName: qn}
		}
		t.byName[qn] = h
	}
	return t, nil
}

// Lookup resolves a handler by qualified "domain.verb" name.
func (t *HandlerTable) Lookup(qualifiedName string) (CustomHandler, bool) {
	h, ok := t.byName[qualifiedName]
	return h, ok
}

// Names returns every qualified verb name with a registered handler, in
// the form registry construction takes for its check that every
// Custom-behavior verb resolves to an implementation. The commands in this
// repository pass customops.Names() to that check instead.
func (t *HandlerTable) Names() map[string]bool {
	out := make(map[string]bool, len(t.byName))
	for n := range t.byName {
		out[n] = true
	}
	return out
}

// DuplicateHandlerError reports two handlers registered for the same verb.
type DuplicateHandlerError struct{ QualifiedName string }

func (e *DuplicateHandlerError) Error() string {
	return "executor: duplicate handler registered for " + e.QualifiedName
}
