package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kyc-dsl-core/internal/dslcore/customops"
	"kyc-dsl-core/internal/dslcore/parser"
	"kyc-dsl-core/internal/dslcore/planner"
	"kyc-dsl-core/internal/dslcore/registry"
)

// PlanCommand creates the "plan" subcommand: parse and plan a DSL source
// file without executing it, printing the resulting topological order.
func PlanCommand() *cobra.Command {
	var registryPath string

	cmd := &cobra.Command{
		Use:   "plan <file.dsl>",
		Short: "Parse and plan a DSL program, printing its topological order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return planDSLFile(args[0], registryPath)
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "configs/verbs.yaml", "Verb registry config path")
	return cmd
}

func planDSLFile(path, registryPath string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	reg, err := registry.LoadFile(registryPath, customops.Names())
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	prog, parseDiags := parser.Parse(string(source))
	for _, d := range diagsItems(parseDiags) {
		fmt.Fprintln(os.Stderr, d.Error())
	}
	if parseDiags.HasErrors() {
		return fmt.Errorf("parse failed with %d diagnostic(s)", parseDiags.Len())
	}

	plan, planDiags := planner.Plan(prog, reg)
	for _, d := range diagsItems(planDiags) {
		fmt.Fprintln(os.Stderr, d.Error())
	}
	if plan == nil {
		return fmt.Errorf("plan failed with %d diagnostic(s)", planDiags.Len())
	}

	if plan.WasReordered {
		fmt.Println("note: source order differs from dependency order")
	}
	for _, op := range plan.Ops {
		line := fmt.Sprintf("%2d. %s", op.TopoIdx, op.Call.QualifiedName())
		if op.Defines != "" {
			line += fmt.Sprintf("  -> @%s", op.Defines)
		}
		if len(op.Consumes) > 0 {
			line += fmt.Sprintf("  (needs %v)", op.Consumes)
		}
		fmt.Println(line)
	}
	return nil
}
