package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kyc-dsl-core/internal/dslcore/customops"
	"kyc-dsl-core/internal/dslcore/registry"
)

// RegistryCommand creates the "registry" command group for inspecting the
// Verb Registry built from a configs/verbs.yaml file: load (fail-fast
// validation only), list (every registered verb), describe (one verb's
// full definition).
func RegistryCommand() *cobra.Command {
	var registryPath string

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the Verb Registry",
	}
	cmd.PersistentFlags().StringVar(&registryPath, "registry", "configs/verbs.yaml", "Verb registry config path")

	cmd.AddCommand(registryLoadCommand(&registryPath))
	cmd.AddCommand(registryListCommand(&registryPath))
	cmd.AddCommand(registryDescribeCommand(&registryPath))
	return cmd
}

func registryLoadCommand(registryPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load the registry config and report whether it validates",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadFile(*registryPath, customops.Names())
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d verb(s) loaded from %s\n", reg.Len(), *registryPath)
			return nil
		},
	}
}

func registryListCommand(registryPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered verb",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadFile(*registryPath, customops.Names())
			if err != nil {
				return err
			}
			for _, def := range reg.List() {
				fmt.Printf("%-28s %-16s returns=%s\n", def.QualifiedName(), def.Behavior.Kind, def.Returns)
			}
			return nil
		},
	}
}

func registryDescribeCommand(registryPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <domain.verb>",
		Short: "Print a single verb's full definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadFile(*registryPath, customops.Names())
			if err != nil {
				return err
			}
			domain, verb, err := splitQualifiedVerb(args[0])
			if err != nil {
				return err
			}
			def, ok := reg.Resolve(domain, verb)
			if !ok {
				return fmt.Errorf("no such verb: %s", args[0])
			}
			fmt.Printf("verb:        %s\n", def.QualifiedName())
			fmt.Printf("behavior:    %s\n", def.Behavior.Kind)
			fmt.Printf("required:    %v\n", def.RequiredArgs)
			fmt.Printf("optional:    %v\n", def.OptionalArgs)
			fmt.Printf("returns:     %s\n", def.Returns)
			fmt.Printf("capture:     %v\n", def.Capture)
			fmt.Printf("description: %s\n", def.Description)
			return nil
		},
	}
}

func splitQualifiedVerb(s string) (domain, verb string, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("expected domain.verb, got %q", s)
}
