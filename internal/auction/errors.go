package auction

import (
	"errors"
	"fmt"
)

// The two failure kinds an invocation can end with. Either one aborts
// the invocation: no state written by it survives.
var (
	// ErrPreconditionViolation means the caller, timing, status or
	// argument checks of an operation failed before any transfer moved.
	ErrPreconditionViolation = errors.New("precondition violation")

	// ErrTransferDenied means a token contract reported failure for a
	// transfer this engine requested.
	ErrTransferDenied = errors.New("transfer denied")
)

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPreconditionViolation, fmt.Sprintf(format, args...))
}

// ErrorKind maps an engine error to its stable wire name, or "" for
// errors that are neither of the two invocation failure kinds.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrPreconditionViolation):
		return "precondition_violation"
	case errors.Is(err, ErrTransferDenied):
		return "transfer_denied"
	default:
		return ""
	}
}
