package memory

import (
	"errors"
	"fmt"
)

// Lookup sentinels, matchable with errors.Is
var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrFactNotFound   = errors.New("fact not found")
)

// ValidationError reports a rejected field at construction or ingestion
// time. The graph never stores an instance that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
