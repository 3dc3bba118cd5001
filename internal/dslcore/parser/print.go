package parser

import (
	"fmt"
	"strings"

	"kyc-dsl-core/internal/dslcore/ast"
)

// Print renders a Program back to DSL source text. It is the inverse of
// Parse up to whitespace and comments: Parse(Print(Parse(p))) reproduces
// the same Program as Parse(p).
func Print(prog *ast.Program) string {
	var sb strings.Builder
	for i, call := range prog.Statements {
		if i > 0 {
			sb.WriteByte('\n')
		}
		printCall(&sb, call)
	}
	return sb.String()
}

func printCall(sb *strings.Builder, call *ast.VerbCall) {
	fmt.Fprintf(sb, "(%s.%s", call.Domain, call.Verb)
	for _, arg := range call.Args {
		sb.WriteByte(' ')
		fmt.Fprintf(sb, ":%s ", arg.Key)
		printValue(sb, arg.Value)
	}
	if call.As != "" {
		fmt.Fprintf(sb, " :as @%s", call.As)
	}
	sb.WriteByte(')')
}

func printValue(sb *strings.Builder, v ast.Value) {
	switch v.Kind {
	case ast.KindString:
		fmt.Fprintf(sb, "%q", v.Str)
	case ast.KindInteger:
		fmt.Fprintf(sb, "%d", v.Int)
	case ast.KindDecimal:
		sb.WriteString(v.Str)
	case ast.KindBoolean:
		if v.Bool {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case ast.KindNull:
		sb.WriteString("null")
	case ast.KindUUID:
		sb.WriteString(v.Str)
	case ast.KindReference:
		fmt.Fprintf(sb, "@%s", v.Str)
	case ast.KindList:
		sb.WriteByte('[')
		for i, e := range v.List {
			if i > 0 {
				sb.WriteByte(' ')
			}
			printValue(sb, e)
		}
		sb.WriteByte(']')
	case ast.KindMap:
		sb.WriteByte('{')
		for i, k := range v.MapOrder {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(sb, ":%s ", k)
			printValue(sb, v.Map[k])
		}
		sb.WriteByte('}')
	}
}
