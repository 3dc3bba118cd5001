// Package customops implements the Custom Handlers table: the verbs whose
// behavior cannot be expressed as one of the registry's generic CRUD
// patterns. The ubo.* handlers here form the KYC Convergence Engine and
// are grounded on the UboDiscoverOwnerOp/UboTraceChainsOp/UboInferChainOp/
// UboCheckCompletenessOp/UboSnapshotCbuOp/UboCompareSnapshotOp operations
// this specification's ownership-analysis behavior was distilled from,
// adapted from SQL-function calls into an in-application, depth-bounded
// graph traversal per this repository's own ownership-chain model.
package customops

import (
	"context"
	"fmt"

	"kyc-dsl-core/internal/dslcore/ast"
	"kyc-dsl-core/internal/dslcore/diag"
	"kyc-dsl-core/internal/dslcore/executor"
	"kyc-dsl-core/internal/store"
)

const schema = `"dsl-ob-poc"`

// edgeState is one of the three states an ownership/control allegation
// edge moves through: alleged -> pending -> proven, with proven -> pending
// available via mark-dirty.
type edgeState string

const (
	stateAlleged edgeState = "alleged"
	statePending edgeState = "pending"
	stateProven  edgeState = "proven"
)

// precondition builds the diag.Diagnostic a state-machine verb returns
// when invoked on an edge in a state that does not permit the requested
// transition, per spec §4.6's verify/mark-dirty failure semantics.
func precondition(reason string) error {
	return diag.New(diag.CodePreconditionFailed, diag.SeverityError, reason)
}

// unresolvedReference builds the diag.Diagnostic returned when a handler
// is given an ID that does not resolve to an existing row: a
// cross-table-existence check the planner's symbol-binding analysis
// cannot perform ahead of execution.
func unresolvedReference(what string) error {
	return diag.New(diag.CodeUnresolvedReference, diag.SeverityError, "unresolved reference: "+what)
}

// AllegeOp creates a new ownership/control edge in state alleged.
//
// Rationale: establishes a graph node in the convergence state machine;
// none of the registry's generic behaviors model a typed state machine
// column alongside an insert.
type AllegeOp struct{}

func (AllegeOp) Domain() string   { return "ubo" }
func (AllegeOp) Verb() string     { return "allege" }
func (AllegeOp) Rationale() string {
	return "creates an ownership edge and initializes its convergence state"
}

func (AllegeOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	cbuID, _ := args.AsUUID("cbu-id")
	fromID, _ := args.AsUUID("from-entity-id")
	toID, _ := args.AsUUID("to-entity-id")
	edgeType, _ := args.AsString("edge-type")
	percentage, hasPercentage := args.AsDecimal("percentage")

	if err := requireExists(ctx, tx, "cbus", "cbu_id", cbuID, "cbu-id"); err != nil {
		return executor.Result{}, err
	}
	if err := requireExists(ctx, tx, "entities", "entity_id", fromID, "from-entity-id"); err != nil {
		return executor.Result{}, err
	}
	if err := requireExists(ctx, tx, "entities", "entity_id", toID, "to-entity-id"); err != nil {
		return executor.Result{}, err
	}

	var percentageArg any
	if hasPercentage {
		percentageArg = percentage
	}

	row, err := tx.FetchOne(ctx, fmt.Sprintf(
		`INSERT INTO %s.ubo_ownership_edges (cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING edge_id`, schema),
		cbuID, fromID, toID, edgeType, percentageArg, string(stateAlleged))
	if err != nil {
		return executor.Result{}, err
	}
	edgeID, _ := row["edge_id"].(string)
	return executor.Result{Kind: executor.ResultUUID, UUID: edgeID}, nil
}

// LinkProofOp attaches a proof document to an edge. An alleged edge
// transitions to pending; a pending or proven edge keeps its state and
// simply records the new proof document. Repeating the call with the same
// document leaves the edge's state and proof set unchanged, but every call
// appends an observation row.
type LinkProofOp struct{}

func (LinkProofOp) Domain() string   { return "ubo" }
func (LinkProofOp) Verb() string     { return "link-proof" }
func (LinkProofOp) Rationale() string {
	return "transitions the edge state machine on proof attachment, a multi-column effect no generic Update models"
}

func (LinkProofOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	edgeID, _ := args.AsUUID("edge-id")
	documentID, _ := args.AsUUID("document-id")

	edge, err := fetchEdge(ctx, tx, edgeID)
	if err != nil {
		return executor.Result{}, err
	}
	if err := requireExists(ctx, tx, "document_catalog", "document_id", documentID, "document-id"); err != nil {
		return executor.Result{}, err
	}

	newState := edgeState(edge["state"].(string))
	if newState == stateAlleged {
		newState = statePending
	}

	// Proofs accumulate: an edge may be backed by more than one
	// catalogued document (spec §3.5's "one or more catalogued
	// documents"), so this is an insert into a proofs junction table, not
	// an overwrite of a single column. The conflict target makes relinking
	// the same document to the same edge add no second proof row.
	_, err = tx.Execute(ctx, fmt.Sprintf(
		`INSERT INTO %s.proofs (edge_id, document_id) VALUES ($1, $2) ON CONFLICT (edge_id, document_id) DO NOTHING`, schema),
		edgeID, documentID)
	if err != nil {
		return executor.Result{}, err
	}

	if _, err := tx.Execute(ctx, fmt.Sprintf(
		`UPDATE %s.ubo_ownership_edges SET state = $1 WHERE edge_id = $2`, schema),
		string(newState), edgeID); err != nil {
		return executor.Result{}, err
	}
	if err := recordObservation(ctx, tx, edgeID, newState); err != nil {
		return executor.Result{}, err
	}
	return executor.Result{Kind: executor.ResultVoid}, nil
}

// VerifyOp transitions a pending edge to proven. Fails if the edge has no
// proof linked (still alleged) or is already proven.
type VerifyOp struct{}

func (VerifyOp) Domain() string   { return "ubo" }
func (VerifyOp) Verb() string     { return "verify" }
func (VerifyOp) Rationale() string {
	return "enforces the pending-to-proven precondition, a state-machine transition"
}

func (VerifyOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	edgeID, _ := args.AsUUID("edge-id")
	edge, err := fetchEdge(ctx, tx, edgeID)
	if err != nil {
		return executor.Result{}, err
	}

	switch edgeState(edge["state"].(string)) {
	case stateAlleged:
		return executor.Result{}, precondition("no proof linked")
	case stateProven:
		return executor.Result{}, precondition("already proven")
	}

	_, err = tx.Execute(ctx, fmt.Sprintf(
		`UPDATE %s.ubo_ownership_edges SET state = $1 WHERE edge_id = $2`, schema),
		string(stateProven), edgeID)
	if err != nil {
		return executor.Result{}, err
	}
	if err := recordObservation(ctx, tx, edgeID, stateProven); err != nil {
		return executor.Result{}, err
	}
	return executor.Result{Kind: executor.ResultVoid}, nil
}

// MarkDirtyOp transitions a proven edge back to pending, recording why.
type MarkDirtyOp struct{}

func (MarkDirtyOp) Domain() string   { return "ubo" }
func (MarkDirtyOp) Verb() string     { return "mark-dirty" }
func (MarkDirtyOp) Rationale() string {
	return "reverses a proven edge's state and records an audit reason in one transition"
}

func (MarkDirtyOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	edgeID, _ := args.AsUUID("edge-id")
	reason, _ := args.AsString("reason")

	edge, err := fetchEdge(ctx, tx, edgeID)
	if err != nil {
		return executor.Result{}, err
	}
	if edgeState(edge["state"].(string)) != stateProven {
		return executor.Result{}, precondition("edge is not proven")
	}

	_, err = tx.Execute(ctx, fmt.Sprintf(
		`UPDATE %s.ubo_ownership_edges SET state = $1, dirty_reason = $2 WHERE edge_id = $3`, schema),
		string(statePending), reason, edgeID)
	if err != nil {
		return executor.Result{}, err
	}
	if err := recordObservation(ctx, tx, edgeID, statePending); err != nil {
		return executor.Result{}, err
	}
	return executor.Result{Kind: executor.ResultVoid}, nil
}

// recordObservation writes a per-edge audit row noting the state the edge
// moved to, per spec §3.5's Observation = "per-edge audit record of state
// changes." Called on every link-proof/verify/mark-dirty transition (not
// on allege, which creates the edge rather than transitioning it), so a
// chain of N post-creation transitions yields exactly N observation rows.
func recordObservation(ctx context.Context, tx store.Tx, edgeID string, state edgeState) error {
	_, err := tx.Execute(ctx, fmt.Sprintf(
		`INSERT INTO %s.ubo_observations (edge_id, state) VALUES ($1, $2)`, schema),
		edgeID, string(state))
	return err
}

func fetchEdge(ctx context.Context, tx store.Tx, edgeID string) (store.Row, error) {
	row, ok, err := tx.FetchOptional(ctx, fmt.Sprintf(
		`SELECT edge_id, cbu_id, from_entity_id, to_entity_id, edge_type, percentage, state
		 FROM %s.ubo_ownership_edges WHERE edge_id = $1`, schema), edgeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, unresolvedReference("edge-id " + edgeID)
	}
	return row, nil
}

func requireExists(ctx context.Context, tx store.Tx, table, col, id, argName string) error {
	_, ok, err := tx.FetchOptional(ctx, fmt.Sprintf(`SELECT %s FROM %s.%s WHERE %s = $1`, col, schema, table, col), id)
	if err != nil {
		return err
	}
	if !ok {
		return unresolvedReference(argName + " " + id)
	}
	return nil
}
