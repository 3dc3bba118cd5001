package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kyc-dsl-core/internal/dslcore/customops"
	"kyc-dsl-core/internal/dslcore/pipeline"
	"kyc-dsl-core/internal/dslcore/registry"
	"kyc-dsl-core/internal/store"
)

// RunCommand creates the "run" subcommand: compile and execute a DSL
// source file against a live store in a single transaction.
func RunCommand() *cobra.Command {
	var (
		registryPath string
		dsn          string
	)

	cmd := &cobra.Command{
		Use:   "run <file.dsl>",
		Short: "Compile and execute a DSL program against the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDSLFile(cmd.Context(), args[0], registryPath, dsn)
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "configs/verbs.yaml", "Verb registry config path")
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")

	return cmd
}

func runDSLFile(ctx context.Context, path, registryPath, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("no DSN: pass --dsn or set DATABASE_URL")
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	handlers, err := customops.NewHandlerTable()
	if err != nil {
		return fmt.Errorf("building handler table: %w", err)
	}
	reg, err := registry.LoadFile(registryPath, customops.Names())
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	s, err := store.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}

	engine := &pipeline.Engine{Registry: reg, Handlers: handlers, Store: s}
	outcome, diags, err := engine.Run(ctx, string(source))
	for _, d := range diagsItems(diags) {
		fmt.Fprintln(os.Stderr, d.Error())
	}
	if err != nil {
		return err
	}

	fmt.Printf("ok: %d operation(s) executed\n", len(outcome.Results))
	for name, val := range outcome.Symbols {
		fmt.Printf("  @%s = %v\n", name, val)
	}
	return nil
}
