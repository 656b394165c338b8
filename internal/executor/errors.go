package executor

import (
	"errors"
	"fmt"

	"hdql/internal/plan"
)

var (
	// ErrTypeMismatch is wrapped when a numeric operator meets a non-numeric
	// attribute.
	ErrTypeMismatch = errors.New("attribute type mismatch")
	errEmptyPlan    = errors.New("plan has no operations")
)

// EntityNotFoundError reports an exact lookup with no matching entity.
// Use a wildcard when absence is expected.
type EntityNotFoundError struct {
	Index      int
	EntityType string
	Name       string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %s:%s not found (operation #%d lookup)", e.EntityType, e.Name, e.Index+1)
}

// ExecutionError wraps any other failure with the position and type of the
// operation that raised it.
type ExecutionError struct {
	Index int
	Op    plan.OpType
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("execution failed: %v", e.Err)
	}
	return fmt.Sprintf("execution failed at operation #%d (%s): %v", e.Index+1, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
