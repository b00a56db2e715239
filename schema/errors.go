package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDescriptor indicates a descriptor that violates its own
	// structural constraints (caller error).
	ErrInvalidDescriptor = errors.New("invalid schema descriptor")

	// ErrUnsetHandle is returned when resolving the Unset sentinel handle.
	ErrUnsetHandle = errors.New("schema handle is unset")

	// ErrUnknownInfoField indicates a lookup of an info field the schema
	// does not carry.
	ErrUnknownInfoField = errors.New("unknown info field")

	// ErrUnknownLocus indicates a lookup of a locus name the schema does
	// not carry.
	ErrUnknownLocus = errors.New("unknown locus")
)

// RangeError indicates an index or handle outside its valid bounds.
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
