package cli

import "kyc-dsl-core/internal/dslcore/diag"

// diagsItems is a nil-safe accessor so callers can range over a possibly
// nil *diag.List without a guard at every call site.
func diagsItems(l *diag.List) []*diag.Diagnostic {
	if l == nil {
		return nil
	}
	return l.Items()
}
