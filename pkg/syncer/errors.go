package syncer

import "fmt"

// ValidationError rejects a request before anything is written. Index is the position of the
// offending event in a batch, or -1.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("events[%d].%s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
