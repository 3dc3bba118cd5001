package executor

import (
	"strconv"

	"kyc-dsl-core/internal/dslcore/ast"
	"kyc-dsl-core/internal/dslcore/diag"
)

// ResolvedArgs is an op's arguments after @-reference resolution, keyed by
// DSL argument name (kebab-case, matching the AST, not the column name).
type ResolvedArgs map[string]any

// resolveValue turns one ast.Value into its concrete Go representation,
// resolving @-references against ctx. A missing binding here is an
// internal invariant violation: the planner is supposed to have already
// rejected any dangling reference, so reaching this path with an unbound
// symbol indicates a bug in the planner, not a user error.
func resolveValue(v ast.Value, ctx *Context) any {
	switch v.Kind {
	case ast.KindString, ast.KindUUID, ast.KindDecimal:
		return v.Str
	case ast.KindInteger:
		return v.Int
	case ast.KindBoolean:
		return v.Bool
	case ast.KindNull:
		return nil
	case ast.KindReference:
		val, ok := ctx.Resolve(v.Str)
		if !ok {
			diag.PanicInvariant("unresolved binding @" + v.Str + " reached the executor")
		}
		return val
	case ast.KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = resolveValue(e, ctx)
		}
		return out
	case ast.KindMap:
		out := make(map[string]any, len(v.Map))
		for _, k := range v.MapOrder {
			out[k] = resolveValue(v.Map[k], ctx)
		}
		return out
	default:
		diag.PanicInvariant("unknown value kind during resolution")
		return nil
	}
}

// ResolveArgs resolves every argument of a verb call against ctx.
func ResolveArgs(call *ast.VerbCall, ctx *Context) ResolvedArgs {
	out := make(ResolvedArgs, len(call.Args))
	for _, a := range call.Args {
		out[a.Key] = resolveValue(a.Value, ctx)
	}
	return out
}

// AsUUID returns args[key] as a string UUID, or ("", false) if absent.
func (a ResolvedArgs) AsUUID(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AsString returns args[key] as a string, or ("", false) if absent.
func (a ResolvedArgs) AsString(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AsInteger returns args[key] as an int64, or (0, false) if absent.
func (a ResolvedArgs) AsInteger(key string) (int64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// AsDecimal returns args[key]'s exact decimal text, or ("", false) if
// absent. Decimal literals are kept as exact text throughout the pipeline;
// callers that need a binary float must parse this themselves. An integer
// literal (e.g. `:percentage 100`) is also accepted and formatted as
// decimal text, since a number written without a '.' parses as
// ast.KindInteger rather than ast.KindDecimal.
func (a ResolvedArgs) AsDecimal(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false
	}
	switch n := v.(type) {
	case string:
		return n, true
	case int64:
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}

// AsBool returns args[key] as a bool, or (false, false) if absent.
func (a ResolvedArgs) AsBool(key string) (bool, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
