package customops

import (
	"context"
	"fmt"

	"kyc-dsl-core/internal/dslcore/ast"
	"kyc-dsl-core/internal/dslcore/executor"
	"kyc-dsl-core/internal/store"
)

const defaultThreshold = 25.0

// isNaturalPerson reports whether entityID has a proper_persons row: the
// terminal condition for a complete ownership chain.
func isNaturalPerson(ctx context.Context, tx store.Tx) func(string) (bool, error) {
	return func(entityID string) (bool, error) {
		_, ok, err := tx.FetchOptional(ctx, fmt.Sprintf(
			`SELECT entity_id FROM %s.proper_persons WHERE entity_id = $1`, schema), entityID)
		return ok, err
	}
}

// TraceChainsOp enumerates every ownership chain from natural persons up
// to a CBU's top-level holdings, attenuating ownership percentage along
// each edge and stopping at depth, cycle, or natural-person termination.
//
// Rationale: recursive graph traversal with cycle prevention and
// percentage attenuation; no generic behavior models a recursive query.
type TraceChainsOp struct{}

func (TraceChainsOp) Domain() string    { return "ubo" }
func (TraceChainsOp) Verb() string      { return "trace-chains" }
func (TraceChainsOp) Rationale() string { return "depth-bounded recursive ownership-chain traversal" }

func (TraceChainsOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	cbuID, _ := args.AsUUID("cbu-id")
	target, hasTarget := args.AsUUID("target-entity-id")
	thresholdStr, hasThreshold := args.AsDecimal("threshold")
	threshold := defaultThreshold
	if hasThreshold {
		threshold = parseDecimal(thresholdStr)
	}

	edges, err := loadEdges(ctx, tx, cbuID)
	if err != nil {
		return executor.Result{}, err
	}

	targets := []string{target}
	if !hasTarget {
		targets = topLevelTargets(edges)
	}

	person := isNaturalPerson(ctx, tx)
	var rows []store.Row
	for _, t := range targets {
		chains, err := traceChainsFrom(ctx, edges, t, defaultMaxDepth, person)
		if err != nil {
			return executor.Result{}, err
		}
		for _, c := range chains {
			if c.EffectiveOwnership*100 < threshold {
				continue
			}
			rows = append(rows, store.Row{
				"target_entity_id":    t,
				"ubo_entity_id":       c.TerminalEntityID,
				"path":                c.Path,
				"edges":               c.Edges,
				"percentages":         c.Percentages,
				"effective_ownership": c.EffectiveOwnership * 100,
				"chain_depth":         c.Depth,
				"is_complete":         c.Complete,
				"all_proven":          c.AllProven,
			})
		}
	}

	return executor.Result{Kind: executor.ResultRecordSet, Records: rows}, nil
}

// convergenceStatus is the computed per-CBU convergence summary shared by
// StatusOp and AssertOp.
type convergenceStatus struct {
	TotalEdges       int
	ProvenEdges      int
	IsConverged      bool
	GapPercentage    float64
	Issues           []string
}

func computeStatus(ctx context.Context, tx store.Tx, cbuID string, threshold float64) (*convergenceStatus, error) {
	edges, err := loadEdges(ctx, tx, cbuID)
	if err != nil {
		return nil, err
	}

	proven := 0
	var issues []string
	for _, e := range edges {
		switch e.State {
		case "proven":
			proven++
		case "pending":
			issues = append(issues, fmt.Sprintf("edge %s is pending verification", e.EdgeID))
		case "alleged":
			issues = append(issues, fmt.Sprintf("edge %s has no proof linked", e.EdgeID))
		}
	}

	targets := topLevelTargets(edges)
	person := isNaturalPerson(ctx, tx)
	var provenOwnership float64
	for _, t := range targets {
		chains, err := traceChainsFrom(ctx, edges, t, defaultMaxDepth, person)
		if err != nil {
			return nil, err
		}
		for _, c := range chains {
			if !c.Complete {
				issues = append(issues, fmt.Sprintf("chain from %s to %s is partial", t, c.TerminalEntityID))
				continue
			}
			if !c.AllProven {
				continue
			}
			if c.EffectiveOwnership*100 < threshold {
				continue
			}
			provenOwnership += c.EffectiveOwnership * 100
		}
	}

	total := len(edges)
	gap := 100.0 - provenOwnership
	if gap < 0 {
		gap = 0
	}

	return &convergenceStatus{
		TotalEdges:    total,
		ProvenEdges:   proven,
		IsConverged:   total > 0 && proven == total,
		GapPercentage: gap,
		Issues:        issues,
	}, nil
}

// StatusOp computes per-CBU convergence percentage and per-edge states.
//
// Rationale: aggregates the whole edge set and recursive chain traversal
// into one read-only report; no generic Select models an aggregate.
type StatusOp struct{}

func (StatusOp) Domain() string    { return "ubo" }
func (StatusOp) Verb() string      { return "status" }
func (StatusOp) Rationale() string { return "aggregates edge states and chain completeness into a convergence report" }

func (StatusOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	cbuID, _ := args.AsUUID("cbu-id")
	thresholdStr, hasThreshold := args.AsDecimal("threshold")
	threshold := defaultThreshold
	if hasThreshold {
		threshold = parseDecimal(thresholdStr)
	}

	status, err := computeStatus(ctx, tx, cbuID, threshold)
	if err != nil {
		return executor.Result{}, err
	}

	return executor.Result{Kind: executor.ResultRecord, Record: store.Row{
		"cbu_id":         cbuID,
		"total_edges":    status.TotalEdges,
		"proven_edges":   status.ProvenEdges,
		"is_converged":   status.IsConverged,
		"gap_percentage": status.GapPercentage,
		"issues":         status.Issues,
	}}, nil
}

// AssertOp is a read-only check that fails the transaction unless the
// named condition holds. Only "ownership-complete" is currently defined.
type AssertOp struct{}

func (AssertOp) Domain() string    { return "ubo" }
func (AssertOp) Verb() string      { return "assert" }
func (AssertOp) Rationale() string { return "aborts the transaction when a named convergence condition is unmet" }

func (AssertOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	cbuID, _ := args.AsUUID("cbu-id")
	condition, _ := args.AsString("condition")

	status, err := computeStatus(ctx, tx, cbuID, defaultThreshold)
	if err != nil {
		return executor.Result{}, err
	}

	switch condition {
	case "ownership-complete":
		if !status.IsConverged {
			return executor.Result{}, precondition(fmt.Sprintf("ownership is not complete for cbu %s: %.1f%% gap", cbuID, status.GapPercentage))
		}
	default:
		return executor.Result{}, fmt.Errorf("ubo.assert: unknown condition %q", condition)
	}

	return executor.Result{Kind: executor.ResultVoid}, nil
}
