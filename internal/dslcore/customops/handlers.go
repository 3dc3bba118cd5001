package customops

import "kyc-dsl-core/internal/dslcore/executor"

// NewHandlerTable builds the Custom Handlers table for the KYC
// Convergence Engine: the nine ubo.* verbs that implement the allegation
// graph's state machine and analysis operations.
func NewHandlerTable() (*executor.HandlerTable, error) {
	return executor.NewHandlerTable(
		AllegeOp{},
		LinkProofOp{},
		VerifyOp{},
		MarkDirtyOp{},
		StatusOp{},
		AssertOp{},
		TraceChainsOp{},
		SnapshotCBUOp{},
		CompareSnapshotOp{},
	)
}

// Names returns every qualified verb name ("domain.verb") implemented by
// this package's handlers, for registry construction's fail-fast check
// that every Custom verb resolves to a handler.
func Names() map[string]bool {
	return map[string]bool{
		"ubo.allege":           true,
		"ubo.link-proof":       true,
		"ubo.verify":           true,
		"ubo.mark-dirty":       true,
		"ubo.status":           true,
		"ubo.assert":           true,
		"ubo.trace-chains":     true,
		"ubo.snapshot-cbu":     true,
		"ubo.compare-snapshot": true,
	}
}
