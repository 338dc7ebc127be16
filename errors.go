package actionmeta

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when a blocking filesystem operation observes
// cooperative cancellation. Caches are never updated from a partial
// computation that ended this way.
var ErrInterrupted = errors.New("actionmeta: interrupted")

// NotFoundError is returned by every metadata-returning API when the
// looked-up artifact resolves to a Missing or Omitted sentinel rather than
// a real value.
type NotFoundError struct {
	Artifact Artifact
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("actionmeta: %s does not exist", e.Artifact)
}

func newNotFoundError(a Artifact) error {
	return &NotFoundError{Artifact: a}
}

// SymlinkCycleError is returned when resolving a symlink's real path
// yields the same path the symlink itself lives at.
type SymlinkCycleError struct {
	Path string
}

func (e *SymlinkCycleError) Error() string {
	return fmt.Sprintf("actionmeta: symlink cycle at %s", e.Path)
}

// InvariantViolationError marks a programmer error: a precondition the
// caller was responsible for upholding was violated. It is fatal for the
// action that triggered it, not a recoverable condition.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string {
	return "actionmeta: invariant violation: " + e.Message
}

// invariant panics with an InvariantViolationError when cond is false. Used
// at every mutating API's precondition check, mirroring Bazel's
// checkState/checkArgument: a violation here means the caller (the
// executor or action cache checker) broke its contract with the handler,
// not that the build input was bad.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantViolationError{Message: fmt.Sprintf(format, args...)})
	}
}
