// Package executor runs a planner.Plan against the store in a single
// transaction, resolving @-reference bindings lazily and dispatching each
// op either to a generic data-driven handler or to a hand-written Custom
// handler.
//
// Transaction handling follows the connection/transaction style already
// used in this codebase's Store (BeginTx / tx.ExecContext / tx.Commit /
// tx.Rollback); generic behavior dispatch is grounded on the Behavior enum
// (Insert/Select/Update/Delete/Upsert/Link/Unlink/ListByFk/SelectWithJoin)
// this specification's verb catalog was distilled from.
package executor

import (
	"context"
	"fmt"

	"kyc-dsl-core/internal/dslcore/diag"
	"kyc-dsl-core/internal/dslcore/planner"
	"kyc-dsl-core/internal/dslcore/registry"
	"kyc-dsl-core/internal/store"
)

// Outcome is the result of a successful program run: the final symbol
// table and the per-op results, in execution (topological) order.
type Outcome struct {
	Symbols map[string]any
	Results []OpOutcome
}

// Error is returned when execution fails partway through a plan. It
// carries the index (into plan.Ops, i.e. topological order) of the op that
// failed, so callers can report precisely where the transaction aborted.
type Error struct {
	OpIndex int
	Verb    string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("execution failed at op %d (%s): %v", e.OpIndex, e.Verb, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Run executes plan against store s in a single transaction. On any
// uncaught error from an op, the transaction is rolled back, the partial
// symbol table is discarded, and an *Error naming the failing op is
// returned. On successful completion of the last op, the transaction
// commits and Run returns the final symbol table and per-op results.
//
// InvariantViolation is recovered here and converted back into a returned
// error; every other diagnostic kind is a value, never a panic.
func Run(ctx context.Context, plan *planner.Plan, s *store.Store, handlers *HandlerTable) (outcome *Outcome, err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: opening transaction: %w", err)
	}

	ectx := NewContext()

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			if iv, ok := r.(*diag.InvariantViolation); ok {
				err = iv
				return
			}
			panic(r)
		}
	}()

	var results []OpOutcome
	for i, op := range plan.Ops {
		res, opErr := dispatch(ctx, op, ectx, tx, handlers)
		if opErr != nil {
			_ = tx.Rollback()
			return nil, &Error{OpIndex: i, Verb: op.Call.QualifiedName(), Err: opErr}
		}
		if op.Call.As != "" {
			switch {
			case res.Kind == ResultUUID && op.Def.Capture:
				ectx.Bind(op.Call.As, res.UUID)
			case res.Kind == ResultRecord:
				ectx.Bind(op.Call.As, res.Record)
			}
		}
		results = append(results, OpOutcome{SourceIndex: op.SourceIdx, Verb: op.Call.QualifiedName(), Result: res})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executor: committing transaction: %w", err)
	}

	return &Outcome{Symbols: ectx.SymbolTable(), Results: results}, nil
}

func dispatch(ctx context.Context, op *planner.Op, ectx *Context, tx store.Tx, handlers *HandlerTable) (Result, error) {
	args := ResolveArgs(op.Call, ectx)

	if op.Def.Behavior.Kind == registry.Custom {
		handlerKey := op.Def.Behavior.CustomVerb
		if handlerKey == "" {
			handlerKey = op.Def.QualifiedName()
		}
		h, ok := handlers.Lookup(handlerKey)
		if !ok {
			diag.PanicInvariant("no custom handler registered for " + handlerKey)
		}
		return h.Execute(ctx, op.Call, args, ectx, tx)
	}

	return dispatchGeneric(ctx, op.Def, args, tx)
}
