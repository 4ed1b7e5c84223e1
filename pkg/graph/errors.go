package graph

import (
	"errors"
	"fmt"
)

// ExecutorError reports a wiring defect: a router returning an undeclared
// or empty target set, or a join that can never be satisfied by the
// declared edges. These are construction-time bugs, not bad input, and are
// never swallowed.
type ExecutorError struct {
	Node   NodeID
	Reason string
}

func (e *ExecutorError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("executor error at node %q: %s", e.Node, e.Reason)
	}
	return fmt.Sprintf("executor error: %s", e.Reason)
}

func execErrf(node NodeID, format string, args ...any) error {
	return &ExecutorError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

// IsExecutorError reports whether err wraps an ExecutorError.
func IsExecutorError(err error) bool {
	var ee *ExecutorError
	return errors.As(err, &ee)
}
