package customops

import (
	"context"
	"encoding/json"
	"fmt"

	"kyc-dsl-core/internal/dslcore/ast"
	"kyc-dsl-core/internal/dslcore/executor"
	"kyc-dsl-core/internal/store"
)

// snapshotEdge is the serialized shape of one edge inside a snapshot's
// stored JSON, independent of the live ubo_ownership_edges row shape so a
// snapshot remains a faithful point-in-time record even as the live
// schema evolves.
type snapshotEdge struct {
	EdgeID     string  `json:"edge_id"`
	FromEntity string  `json:"from_entity_id"`
	ToEntity   string  `json:"to_entity_id"`
	EdgeType   string  `json:"edge_type"`
	State      string  `json:"state"`
}

type snapshotChain struct {
	TargetEntityID     string   `json:"target_entity_id"`
	UBOEntityID        string   `json:"ubo_entity_id"`
	Path               []string `json:"path"`
	EffectiveOwnership float64  `json:"effective_ownership"`
	ChainDepth         int      `json:"chain_depth"`
	IsComplete         bool     `json:"is_complete"`
}

// SnapshotCBUOp captures a point-in-time record of a CBU's full edge set
// and chain traces, for audit and later comparison.
//
// Rationale: composes the live edge set and a full chain trace into one
// immutable JSON document; no generic Insert can assemble derived data.
type SnapshotCBUOp struct{}

func (SnapshotCBUOp) Domain() string    { return "ubo" }
func (SnapshotCBUOp) Verb() string      { return "snapshot-cbu" }
func (SnapshotCBUOp) Rationale() string { return "captures derived chain-trace state alongside the raw edge set" }

func (SnapshotCBUOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	cbuID, _ := args.AsUUID("cbu-id")
	snapshotType, _ := args.AsString("snapshot-type")
	reason, hasReason := args.AsString("reason")

	edges, err := loadEdges(ctx, tx, cbuID)
	if err != nil {
		return executor.Result{}, err
	}

	snapshotEdges := make([]snapshotEdge, 0, len(edges))
	for _, e := range edges {
		snapshotEdges = append(snapshotEdges, snapshotEdge{
			EdgeID: e.EdgeID, FromEntity: e.FromEntity, ToEntity: e.ToEntity,
			EdgeType: e.EdgeType, State: e.State,
		})
	}

	person := isNaturalPerson(ctx, tx)
	var chains []snapshotChain
	var totalOwnership float64
	for _, t := range topLevelTargets(edges) {
		results, err := traceChainsFrom(ctx, edges, t, defaultMaxDepth, person)
		if err != nil {
			return executor.Result{}, err
		}
		for _, c := range results {
			chains = append(chains, snapshotChain{
				TargetEntityID: t, UBOEntityID: c.TerminalEntityID, Path: c.Path,
				EffectiveOwnership: c.EffectiveOwnership * 100, ChainDepth: c.Depth, IsComplete: c.Complete,
			})
			if c.Complete && c.AllProven {
				totalOwnership += c.EffectiveOwnership * 100
			}
		}
	}

	edgesJSON, err := json.Marshal(snapshotEdges)
	if err != nil {
		return executor.Result{}, fmt.Errorf("ubo.snapshot-cbu: marshaling edges: %w", err)
	}
	chainsJSON, err := json.Marshal(chains)
	if err != nil {
		return executor.Result{}, fmt.Errorf("ubo.snapshot-cbu: marshaling chains: %w", err)
	}

	var reasonArg any
	if hasReason {
		reasonArg = reason
	}

	row, err := tx.FetchOne(ctx, fmt.Sprintf(
		`INSERT INTO %s.ubo_snapshots (cbu_id, snapshot_type, reason, edges_json, chains_json, total_identified_ownership)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING snapshot_id`, schema),
		cbuID, snapshotType, reasonArg, string(edgesJSON), string(chainsJSON), totalOwnership)
	if err != nil {
		return executor.Result{}, err
	}
	snapshotID, _ := row["snapshot_id"].(string)
	return executor.Result{Kind: executor.ResultUUID, UUID: snapshotID}, nil
}

// CompareSnapshotOp diffs two previously captured snapshots: UBOs added,
// UBOs removed, and the change in total identified ownership.
//
// Rationale: set-difference comparison across two stored JSON documents
// with a recorded audit row; no generic behavior expresses a comparison.
type CompareSnapshotOp struct{}

func (CompareSnapshotOp) Domain() string    { return "ubo" }
func (CompareSnapshotOp) Verb() string      { return "compare-snapshot" }
func (CompareSnapshotOp) Rationale() string { return "set-difference comparison between two stored snapshot documents" }

func (CompareSnapshotOp) Execute(ctx context.Context, call *ast.VerbCall, args executor.ResolvedArgs, ectx *executor.Context, tx store.Tx) (executor.Result, error) {
	baselineID, _ := args.AsUUID("baseline-snapshot-id")
	currentID, _ := args.AsUUID("current-snapshot-id")

	baseline, err := fetchSnapshot(ctx, tx, baselineID)
	if err != nil {
		return executor.Result{}, err
	}
	current, err := fetchSnapshot(ctx, tx, currentID)
	if err != nil {
		return executor.Result{}, err
	}

	baselineUBOs, err := uboSet(baseline)
	if err != nil {
		return executor.Result{}, err
	}
	currentUBOs, err := uboSet(current)
	if err != nil {
		return executor.Result{}, err
	}

	var added, removed []string
	for id := range currentUBOs {
		if !baselineUBOs[id] {
			added = append(added, id)
		}
	}
	for id := range baselineUBOs {
		if !currentUBOs[id] {
			removed = append(removed, id)
		}
	}

	ownershipDelta := current.TotalOwnership - baseline.TotalOwnership
	hasChanges := len(added) > 0 || len(removed) > 0

	addedJSON, _ := json.Marshal(added)
	removedJSON, _ := json.Marshal(removed)
	summaryJSON, _ := json.Marshal(map[string]any{
		"ubos_added":        len(added),
		"ubos_removed":      len(removed),
		"ownership_delta":   ownershipDelta,
	})

	row, err := tx.FetchOne(ctx, fmt.Sprintf(
		`INSERT INTO %s.ubo_snapshot_comparisons
		 (cbu_id, baseline_snapshot_id, current_snapshot_id, has_changes, change_summary, added_ubos, removed_ubos)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING comparison_id`, schema),
		baseline.CBUID, baselineID, currentID, hasChanges, string(summaryJSON), string(addedJSON), string(removedJSON))
	if err != nil {
		return executor.Result{}, err
	}
	comparisonID, _ := row["comparison_id"].(string)

	return executor.Result{Kind: executor.ResultRecord, Record: store.Row{
		"comparison_id":       comparisonID,
		"has_changes":         hasChanges,
		"added_ubos":          added,
		"removed_ubos":        removed,
		"ownership_delta":     ownershipDelta,
		"baseline_ownership":  baseline.TotalOwnership,
		"current_ownership":   current.TotalOwnership,
	}}, nil
}

type snapshotRecord struct {
	CBUID          string
	ChainsJSON     string
	TotalOwnership float64
}

func fetchSnapshot(ctx context.Context, tx store.Tx, snapshotID string) (*snapshotRecord, error) {
	row, ok, err := tx.FetchOptional(ctx, fmt.Sprintf(
		`SELECT cbu_id, chains_json, total_identified_ownership FROM %s.ubo_snapshots WHERE snapshot_id = $1`, schema),
		snapshotID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, unresolvedReference("snapshot-id " + snapshotID)
	}
	rec := &snapshotRecord{CBUID: asString(row["cbu_id"]), ChainsJSON: asString(row["chains_json"])}
	if f, ok := row["total_identified_ownership"].(float64); ok {
		rec.TotalOwnership = f
	}
	return rec, nil
}

func uboSet(snap *snapshotRecord) (map[string]bool, error) {
	var chains []snapshotChain
	if snap.ChainsJSON != "" {
		if err := json.Unmarshal([]byte(snap.ChainsJSON), &chains); err != nil {
			return nil, fmt.Errorf("ubo.compare-snapshot: parsing chains: %w", err)
		}
	}
	out := make(map[string]bool)
	for _, c := range chains {
		if c.IsComplete {
			out[c.UBOEntityID] = true
		}
	}
	return out, nil
}
