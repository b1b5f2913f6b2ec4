package facet

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan matches every *StructuralError with errors.Is.
var ErrInvalidPlan = errors.New("invalid parallel facet plan")

// StructuralError reports a logical query that cannot be run as a parallel facet plan. It is always
// returned before any engine call is made.
type StructuralError struct {
	// StageCount is the number of top-level stages in the rejected query.
	StageCount int
	// Label is the top-level stage label that was found, if the query had one stage.
	Label string
	// Facet names the offending facet for duplicate or empty names.
	Facet string

	reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidPlan, e.reason)
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrInvalidPlan
}

// EngineError reports the facet whose aggregation failed.
type EngineError struct {
	Facet string
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("facet %q failed: %v", e.Facet, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func stageCountError(n int) *StructuralError {
	return &StructuralError{
		StageCount: n,
		reason: fmt.Sprintf("the top level pipeline must have just one stage (%q); actual stage count: %d",
			Marker, n),
	}
}

func labelError(label string) *StructuralError {
	return &StructuralError{
		StageCount: 1,
		Label:      label,
		reason: fmt.Sprintf("the top level pipeline stage must be %q; actual stage label: %q",
			Marker, label),
	}
}
