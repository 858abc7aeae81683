//go:build bberelease

package arena

import bbe "github.com/Brotcrunsher/BrotboxEngine"

// StrictViolations reports whether protocol violations panic.
const StrictViolations = false

func onViolation(err *ViolationError) {
	bbe.Logger().Error("arena: protocol violation", "op", err.Op, "reason", err.Reason)
}
