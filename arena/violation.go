package arena

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation is wrapped by every ViolationError.
var ErrProtocolViolation = errors.New("arena: protocol violation")

// ViolationError describes a misuse of the arena protocol.
type ViolationError struct {
	Op     string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("arena: protocol violation in %s: %s", e.Op, e.Reason)
}

func (e *ViolationError) Unwrap() error { return ErrProtocolViolation }

// violate reports a protocol violation according to the build policy and
// returns it for callers that continue.
func (a *Arena) violate(op, reason string) error {
	err := &ViolationError{Op: op, Reason: reason}
	onViolation(err)
	return err
}
