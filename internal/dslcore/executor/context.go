package executor

import (
	"strings"

	"kyc-dsl-core/internal/dslcore/diag"
)

// Context carries the symbol table, diagnostics, and state shared across a
// single program run. Parent/child contexts form a read-through chain: a
// child's lookup falls through to its parent on miss, but writes only ever
// land in the child's own table — bindings are never aliased between
// parent and child, per the symbol-table lifetime design.
type Context struct {
	parent *Context
	table  map[string]any
	diags  *diag.List
}

// NewContext creates a root execution context with no parent.
func NewContext() *Context {
	return &Context{table: make(map[string]any), diags: &diag.List{}}
}

// Child creates a context that reads through to c but writes only to its
// own table, so a nested run sees the parent's bindings read-only and may
// shadow them locally. No verb or handler in this repository creates a
// child context.
func (c *Context) Child() *Context {
	return &Context{parent: c, table: make(map[string]any), diags: c.diags}
}

// Bind records the value produced for a symbol name in this context's own
// table.
func (c *Context) Bind(name string, value any) {
	c.table[name] = value
}

// Resolve looks up a bound symbol, checking this context then each parent
// in turn.
func (c *Context) Resolve(name string) (any, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if v, ok := ctx.table[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Diagnostics returns the shared diagnostics list for this execution run.
func (c *Context) Diagnostics() *diag.List { return c.diags }

// SymbolTable returns a flattened snapshot of every binding visible from c,
// parent bindings included, child bindings taking precedence.
func (c *Context) SymbolTable() map[string]any {
	out := make(map[string]any)
	var chain []*Context
	for ctx := c; ctx != nil; ctx = ctx.parent {
		chain = append(chain, ctx)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].table {
			out[k] = v
		}
	}
	return out
}

// ColumnName converts a kebab-case DSL argument key to its snake_case
// column-name convention, e.g. "first-name" -> "first_name".
func ColumnName(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}
