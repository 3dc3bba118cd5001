// Command dslcore is a cobra-based CLI for compiling, planning, and
// executing DSL programs against the Verb Registry and the store, and for
// inspecting the registry itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kyc-dsl-core/internal/cli"
)

func main() {
	root := &cobra.Command{
		Use:   "dslcore",
		Short: "Compile, plan and execute KYC onboarding DSL programs",
	}

	root.AddCommand(cli.RunCommand())
	root.AddCommand(cli.PlanCommand())
	root.AddCommand(cli.ValidateCommand())
	root.AddCommand(cli.RegistryCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
