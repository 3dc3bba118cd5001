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

// ValidateCommand creates the "validate" subcommand: parse and plan a DSL
// source file, reporting every diagnostic without executing anything.
func ValidateCommand() *cobra.Command {
	var registryPath string

	cmd := &cobra.Command{
		Use:   "validate <file.dsl>",
		Short: "Validate a DSL program's syntax and verb usage without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateDSLFile(args[0], registryPath)
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "configs/verbs.yaml", "Verb registry config path")
	return cmd
}

func validateDSLFile(path, registryPath string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	reg, err := registry.LoadFile(registryPath, customops.Names())
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}

	prog, parseDiags := parser.Parse(string(source))
	total := parseDiags.Len()

	if parseDiags.HasErrors() {
		for _, d := range diagsItems(parseDiags) {
			fmt.Println(d.Error())
		}
		return fmt.Errorf("%d diagnostic(s), invalid", total)
	}

	_, pdiags := planner.Plan(prog, reg)
	total += pdiags.Len()
	for _, d := range diagsItems(parseDiags) {
		fmt.Println(d.Error())
	}
	for _, d := range diagsItems(pdiags) {
		fmt.Println(d.Error())
	}

	if pdiags.HasErrors() {
		return fmt.Errorf("%d diagnostic(s), invalid", total)
	}

	fmt.Printf("valid (%d diagnostic(s), 0 errors)\n", total)
	return nil
}
