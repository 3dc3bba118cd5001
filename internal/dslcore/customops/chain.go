package customops

import (
	"context"
	"fmt"

	"kyc-dsl-core/internal/store"
)

// edgeRow is one ubo_ownership_edges row, loaded in bulk and held in
// memory for the duration of a single traversal. Per this repository's
// ≤10,000-edge scale assumption, pulling a CBU's whole edge set into
// memory is preferable to one recursive-CTE round trip per chain.
type edgeRow struct {
	EdgeID      string
	FromEntity  string
	ToEntity    string
	EdgeType    string
	Percentage  *string
	State       string
}

func loadEdges(ctx context.Context, tx store.Tx, cbuID string) ([]edgeRow, error) {
	rows, err := tx.FetchAll(ctx, fmt.Sprintf(
		`SELECT edge_id, from_entity_id, to_entity_id, edge_type, percentage, state
		 FROM %s.ubo_ownership_edges WHERE cbu_id = $1`, schema), cbuID)
	if err != nil {
		return nil, err
	}
	edges := make([]edgeRow, 0, len(rows))
	for _, r := range rows {
		e := edgeRow{
			EdgeID:     asString(r["edge_id"]),
			FromEntity: asString(r["from_entity_id"]),
			ToEntity:   asString(r["to_entity_id"]),
			EdgeType:   asString(r["edge_type"]),
			State:      asString(r["state"]),
		}
		if p, ok := r["percentage"].(string); ok {
			e.Percentage = &p
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// topLevelTargets returns every to_entity_id that is not itself a
// from_entity_id among edges: the entities this CBU's structure directly
// holds, with nothing above them but further owners (the natural starting
// points for an upward trace when no target-entity-id is given).
func topLevelTargets(edges []edgeRow) []string {
	isOwner := make(map[string]bool, len(edges))
	for _, e := range edges {
		isOwner[e.FromEntity] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range edges {
		if isOwner[e.ToEntity] {
			continue
		}
		if seen[e.ToEntity] {
			continue
		}
		seen[e.ToEntity] = true
		out = append(out, e.ToEntity)
	}
	return out
}

// chainResult is one traced ownership path, walking upward from a target
// entity through its owners to either a natural person (complete) or a
// dead end with no further owner (partial, contributing to the gap).
type chainResult struct {
	Path               []string // entity IDs, target-first
	Edges              []string // edge IDs walked
	Percentages        []string
	EffectiveOwnership float64
	Depth              int
	Complete           bool
	TerminalEntityID   string
	AllProven          bool
}

const defaultMaxDepth = 10

// traceChainsFrom walks every path upward from start through edges,
// stopping at natural persons, at a dead end, at maxDepth, or when the
// next node already appears in the current path (cycle prevention).
func traceChainsFrom(ctx context.Context, edges []edgeRow, start string, maxDepth int, isPerson func(entityID string) (bool, error)) ([]chainResult, error) {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	byToEntity := make(map[string][]edgeRow, len(edges))
	for _, e := range edges {
		byToEntity[e.ToEntity] = append(byToEntity[e.ToEntity], e)
	}

	var results []chainResult
	var walk func(current string, path []string, edgeIDs []string, pct []string, effective float64, allProven bool, depth int) error
	walk = func(current string, path []string, edgeIDs []string, pct []string, effective float64, allProven bool, depth int) error {
		person, err := isPerson(current)
		if err != nil {
			return err
		}
		if person {
			results = append(results, chainResult{
				Path: append([]string{}, path...), Edges: append([]string{}, edgeIDs...),
				Percentages: append([]string{}, pct...), EffectiveOwnership: effective,
				Depth: depth, Complete: true, TerminalEntityID: current, AllProven: allProven,
			})
			return nil
		}
		if depth >= maxDepth {
			results = append(results, chainResult{
				Path: append([]string{}, path...), Edges: append([]string{}, edgeIDs...),
				Percentages: append([]string{}, pct...), EffectiveOwnership: effective,
				Depth: depth, Complete: false, TerminalEntityID: current, AllProven: allProven,
			})
			return nil
		}

		owners := byToEntity[current]
		if len(owners) == 0 {
			results = append(results, chainResult{
				Path: append([]string{}, path...), Edges: append([]string{}, edgeIDs...),
				Percentages: append([]string{}, pct...), EffectiveOwnership: effective,
				Depth: depth, Complete: false, TerminalEntityID: current, AllProven: allProven,
			})
			return nil
		}

		for _, owner := range owners {
			if contains(path, owner.FromEntity) {
				continue // cycle prevention: next node already in path
			}
			nextEffective := effective
			nextPct := pct
			if owner.Percentage != nil {
				f := parseDecimal(*owner.Percentage)
				nextEffective = effective * (f / 100.0)
				nextPct = append(append([]string{}, pct...), *owner.Percentage)
			} else {
				nextPct = append(append([]string{}, pct...), "")
			}
			if err := walk(owner.FromEntity,
				append(append([]string{}, path...), owner.FromEntity),
				append(append([]string{}, edgeIDs...), owner.EdgeID),
				nextPct, nextEffective, allProven && owner.State == "proven", depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(start, []string{start}, nil, nil, 1.0, true, 0); err != nil {
		return nil, err
	}
	return results, nil
}

func contains(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

func parseDecimal(s string) float64 {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	if err != nil {
		return 0
	}
	return f
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
