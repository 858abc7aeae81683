//go:build !bberelease

package arena

// StrictViolations reports whether protocol violations panic.
const StrictViolations = true

func onViolation(err *ViolationError) {
	panic(err)
}
