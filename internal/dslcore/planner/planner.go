// Package planner validates a Program against the Verb Registry, builds the
// dependency DAG over :as bindings and @-references, and emits a
// deterministic topologically-sorted execution plan.
//
// There is no direct precedent in this codebase for this exact algorithm;
// it follows this corpus's general preference for small, explicit,
// non-reflective structs (as in internal/ir and internal/domain-registry)
// and borrows its "ordered steps with inferred readiness" vocabulary from
// this codebase's orchestration session-step ordering.
package planner

import (
	"sort"

	"kyc-dsl-core/internal/dslcore/ast"
	"kyc-dsl-core/internal/dslcore/diag"
	"kyc-dsl-core/internal/dslcore/registry"
)

// Op is one planned operation: a verb call bound to its resolved
// definition, its position in source order, and its final position in
// topological order.
type Op struct {
	Call       *ast.VerbCall
	Def        *registry.VerbDef
	SourceIdx  int
	TopoIdx    int
	Defines    string   // the :as symbol this op defines, "" if none
	Consumes   []string // every @-reference symbol this op consumes
}

// Plan is the planner's output: an ordered list of ops (in final
// topological order) plus whether that order differs from source order.
type Plan struct {
	Ops          []*Op
	WasReordered bool
}

// Plan validates prog against reg and produces an execution Plan. Every
// diagnostic encountered (missing verbs, missing/duplicate/unknown
// arguments, dangling references, cycles) is appended to the returned List.
// A Plan with a non-nil Ops slice is only ever emitted when no
// CyclicDependency was found; ops implicated in other errors are dropped
// from the plan but still reported.
func Plan(prog *ast.Program, reg *registry.Registry) (*Plan, *diag.List) {
	var diags diag.List

	type candidate struct {
		call *ast.VerbCall
		def  *registry.VerbDef
	}
	var candidates []candidate

	definedBy := make(map[string]int) // symbol -> index into candidates

	for _, call := range prog.Statements {
		def, ok := reg.Resolve(call.Domain, call.Verb)
		if !ok {
			diags.Add(diag.At(diag.CodeUndefinedSymbol, diag.SeverityError,
				"undefined verb '"+call.QualifiedName()+"'", call.Pos))
			continue
		}

		keys := make([]string, 0, len(call.Args))
		for _, a := range call.Args {
			keys = append(keys, a.Key)
		}
		result := registry.Validate(def, keys)
		if len(result.Missing) > 0 {
			diags.Add(diag.At(diag.CodeMissingArgument, diag.SeverityError,
				"missing required argument(s) "+joinQuoted(result.Missing)+" for '"+call.QualifiedName()+"'", call.Pos))
			continue
		}
		if len(result.Duplicated) > 0 {
			diags.Add(diag.At(diag.CodeMissingArgument, diag.SeverityError,
				"duplicate argument(s) "+joinQuoted(result.Duplicated)+" for '"+call.QualifiedName()+"'", call.Pos))
			continue
		}
		for _, u := range result.Unknown {
			diags.Add(diag.At(diag.CodeUnknownArgument, diag.SeverityWarn,
				"unknown argument '"+u+"' for '"+call.QualifiedName()+"'", call.Pos))
		}

		idx := len(candidates)
		candidates = append(candidates, candidate{call: call, def: def})
		if call.As != "" {
			if prevIdx, exists := definedBy[call.As]; exists {
				_ = prevIdx
				diags.Add(diag.At(diag.CodeMissingArgument, diag.SeverityError,
					"symbol @"+call.As+" is bound more than once", call.AsPos))
			} else {
				definedBy[call.As] = idx
			}
		}
	}

	// Build defines/consumes and the dependency graph.
	ops := make([]*Op, len(candidates))
	for i, c := range candidates {
		var consumes []string
		for _, a := range c.call.Args {
			consumes = append(consumes, ast.References(a.Value)...)
		}
		ops[i] = &Op{
			Call:      c.call,
			Def:       c.def,
			SourceIdx: c.call.SourceIndex,
			Defines:   c.call.As,
			Consumes:  consumes,
		}
	}

	// Dangling references.
	validOps := make([]bool, len(ops))
	for i := range validOps {
		validOps[i] = true
	}
	for i, op := range ops {
		for _, sym := range op.Consumes {
			if _, exists := definedBy[sym]; !exists {
				diags.Add(diag.At(diag.CodeUnresolvedReference, diag.SeverityError,
					"reference @"+sym+" has no defining op", op.Call.Pos))
				validOps[i] = false
			}
		}
	}

	// Build adjacency among still-valid ops: edge A -> B iff B consumes a
	// symbol A defines.
	adj := make(map[int][]int) // op index -> dependent op indices
	indegree := make([]int, len(ops))
	for i, op := range ops {
		if !validOps[i] {
			continue
		}
		for _, sym := range op.Consumes {
			defIdx, exists := definedBy[sym]
			if !exists || !validOps[defIdx] {
				continue
			}
			adj[defIdx] = append(adj[defIdx], i)
			indegree[i]++
		}
	}

	// Detect cycles among all ops reachable through the dependency graph
	// (including self-references, which are always cyclic) via DFS, so a
	// cycle diagnostic can name every op involved even before toposort.
	if cyc := findCycle(ops, validOps, adj); len(cyc) > 0 {
		var idxs []int
		for _, i := range cyc {
			idxs = append(idxs, ops[i].SourceIdx)
		}
		d := diag.At(diag.CodeCyclicDependency, diag.SeverityError,
			"cyclic dependency among ops", ops[cyc[0]].Call.Pos)
		d.OpIndices = idxs
		diags.Add(d)
		return nil, &diags
	}

	// Kahn's algorithm, ready-set tie-break by lowest source index.
	order := kahnToposort(ops, validOps, adj, indegree)

	planOps := make([]*Op, 0, len(order))
	for topoIdx, i := range order {
		ops[i].TopoIdx = topoIdx
		planOps = append(planOps, ops[i])
	}

	// Rank surviving ops by their relative source order (their position
	// among validOps, not their raw SourceIdx) so that ops dropped earlier
	// for undefined verbs or missing arguments don't leave gaps that read
	// as a reorder. WasReordered means "the topo order differs from the
	// order the surviving ops appeared in source," not "SourceIdx equals
	// topoIdx."
	rank := make(map[int]int, len(ops))
	for i := range ops {
		if validOps[i] {
			rank[i] = len(rank)
		}
	}
	wasReordered := false
	for topoIdx, i := range order {
		if rank[i] != topoIdx {
			wasReordered = true
			break
		}
	}
	if wasReordered {
		diags.Add(diag.New(diag.CodeReorder, diag.SeverityInfo,
			"execution order differs from source order"))
	}

	return &Plan{Ops: planOps, WasReordered: wasReordered}, &diags
}

// findCycle returns the indices of one cycle if the dependency graph
// (restricted to validOps) contains one, or nil if it is acyclic.
func findCycle(ops []*Op, validOps []bool, adj map[int][]int) []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(ops))
	var stack []int
	var cycle []int

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = gray
		stack = append(stack, n)
		neighbors := append([]int(nil), adj[n]...)
		sort.Ints(neighbors)
		for _, m := range neighbors {
			if !validOps[m] {
				continue
			}
			switch color[m] {
			case white:
				if visit(m) {
					return true
				}
			case gray:
				// Found the back edge; extract the cycle from the stack.
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i])
					if stack[i] == m {
						break
					}
				}
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	indices := make([]int, 0, len(ops))
	for i, op := range ops {
		if validOps[i] {
			indices = append(indices, i)
		}
		_ = op
	}
	sort.Ints(indices)
	for _, i := range indices {
		if color[i] == white {
			if visit(i) {
				return cycle
			}
		}
	}
	return nil
}

// kahnToposort performs Kahn's algorithm over the validOps-restricted
// subgraph, breaking ties among ready nodes by lowest source index so the
// result is deterministic and "if you wrote it in order, we keep it in
// order."
func kahnToposort(ops []*Op, validOps []bool, adj map[int][]int, indegree []int) []int {
	remaining := make([]int, len(indegree))
	copy(remaining, indegree)

	ready := make([]int, 0)
	for i, op := range ops {
		if validOps[i] && remaining[i] == 0 {
			ready = append(ready, i)
		}
		_ = op
	}
	sort.Slice(ready, func(a, b int) bool { return ops[ready[a]].SourceIdx < ops[ready[b]].SourceIdx })

	var order []int
	for len(ready) > 0 {
		// Pop the lowest-source-index ready node.
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		neighbors := append([]int(nil), adj[n]...)
		sort.Ints(neighbors)
		var newlyReady []int
		for _, m := range neighbors {
			if !validOps[m] {
				continue
			}
			remaining[m]--
			if remaining[m] == 0 {
				newlyReady = append(newlyReady, m)
			}
		}
		if len(newlyReady) > 0 {
			ready = append(ready, newlyReady...)
			sort.Slice(ready, func(a, b int) bool { return ops[ready[a]].SourceIdx < ops[ready[b]].SourceIdx })
		}
	}
	return order
}

func joinQuoted(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += "'" + it + "'"
	}
	return out
}
