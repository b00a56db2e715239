package popstore

import (
	"errors"
	"fmt"
)

var (
	// ErrViewingAncestral is returned by mutating operations while an
	// ancestral generation is active. Return to generation 0 first.
	ErrViewingAncestral = errors.New("population is viewing an ancestral generation")

	// ErrActivatedVSP is returned by operations that are not allowed while
	// a virtual subpopulation is activated.
	ErrActivatedVSP = errors.New("operation not allowed with an activated virtual subpopulation")

	// ErrNoSplitter is returned by virtual subpopulation operations when no
	// splitter has been set.
	ErrNoSplitter = errors.New("population has no virtual subpopulation splitter")
)

// RangeError indicates an index or handle outside its valid bounds.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type RangeError struct {
	What  string
	Index int
	Size  int
	cause error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.What, e.Index, e.Size)
}

func (e *RangeError) Unwrap() error { return e.cause }

// PreconditionError indicates caller-supplied sizes, proportions, indices or
// names that violate a stated contract. The store is left unchanged.
type PreconditionError struct {
	Op     string
	Reason string
	cause  error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.cause }

// InvariantError indicates an internal consistency check failure. It is a
// defect in the caller's use of the package or in the package itself, never
// a recoverable condition.
type InvariantError struct {
	Op     string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Op, e.Reason)
}

// ResourceError indicates that a buffer reallocation was denied by the
// resource controller. The store keeps its prior validated state.
type ResourceError struct {
	Op    string
	Bytes int64
	cause error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: cannot reserve %d bytes", e.Op, e.Bytes)
}

func (e *ResourceError) Unwrap() error { return e.cause }

func precondition(op, format string, args ...any) error {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

func preconditionWrap(op string, cause error) error {
	return &PreconditionError{Op: op, Reason: cause.Error(), cause: cause}
}
