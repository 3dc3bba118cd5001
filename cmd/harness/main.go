// CLI harness runner for DSL test suites, driving programs through the
// local compile/plan/execute pipeline against a real Postgres connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"kyc-dsl-core/internal/dslcore/customops"
	"kyc-dsl-core/internal/dslcore/pipeline"
	"kyc-dsl-core/internal/dslcore/registry"
	"kyc-dsl-core/internal/harness"
	"kyc-dsl-core/internal/store"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	registryPath := flag.String("registry", "configs/verbs.yaml", "Verb registry config path")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "no DSN: pass -dsn or set DATABASE_URL")
		os.Exit(1)
	}

	ctx := context.Background()

	handlers, err := customops.NewHandlerTable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building handler table: %v\n", err)
		os.Exit(1)
	}

	reg, err := registry.LoadFile(*registryPath, customops.Names())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading registry: %v\n", err)
		os.Exit(1)
	}

	s, err := store.NewStore(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to store: %v\n", err)
		os.Exit(1)
	}

	engine := &pipeline.Engine{Registry: reg, Handlers: handlers, Store: s}
	runner := harness.NewRunner(engine).WithVerbose(*verbose)

	suite := harness.Suite{
		Name:        "Basic DSL Tests",
		Description: "Tests basic CBU, entity and UBO convergence operations",
		Cases: []harness.Case{
			{
				Name: "Create CBU",
				DSL:  `(cbu.ensure :name "Test Fund" :jurisdiction "LU" :client-type "fund" :as @fund)`,
				Expect: harness.Expectation{
					Success:      true,
					BindingCount: intPtr(1),
				},
			},
			{
				Name: "Create entity",
				DSL:  `(entity.create-proper-person :first-name "John" :last-name "Smith" :as @john)`,
				Expect: harness.Expectation{
					Success:      true,
					BindingCount: intPtr(1),
				},
			},
			{
				Name: "Allege and verify ownership edge",
				DSL: `(cbu.ensure :name "Convergence Fund" :jurisdiction "LU" :client-type "fund" :as @cbu)
(entity.create-proper-person :first-name "Jane" :last-name "Doe" :as @ubo)
(entity.create-limited-company :name "HoldCo" :jurisdiction "LU" :as @hold)
(ubo.allege :cbu-id @cbu :from-entity-id @ubo :to-entity-id @hold :edge-type "direct" :percentage 100 :as @edge)
(document.catalog :cbu-id @cbu :doc-type "passport" :as @doc)
(ubo.link-proof :edge-id @edge :document-id @doc)
(ubo.verify :edge-id @edge)`,
				Expect: harness.Expectation{
					Success:      true,
					BindingCount: intPtr(5),
				},
			},
			{
				Name: "Invalid DSL",
				DSL:  `(invalid.verb :foo "bar")`,
				Expect: harness.Expectation{
					Success: false,
				},
			},
		},
	}

	result, err := runner.Run(ctx, suite)
	if err != nil {
		fmt.Fprintf(os.Stderr, "suite error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Suite: %s\n", result.Name)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Passed: %d, Failed: %d, Skipped: %d\n\n", result.Passed, result.Failed, result.Skipped)

	for _, r := range result.Results {
		status := "PASS"
		if r.Skipped {
			status = "SKIP"
		} else if !r.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s (%v)\n", status, r.Case, r.Duration)
		if r.Error != "" {
			fmt.Printf("       Error: %s\n", r.Error)
		}
	}

	if result.Failed > 0 {
		os.Exit(1)
	}
}

func intPtr(i int) *int { return &i }
