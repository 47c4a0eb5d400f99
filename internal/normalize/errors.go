package normalize

import (
	"fmt"
	"strings"
)

// Kind classifies a normalization failure.
type Kind string

const (
	// MissingFields means required fields were absent or empty.
	MissingFields Kind = "MissingFields"
	// InvalidFields means fields were present but could not be interpreted.
	InvalidFields Kind = "InvalidFields"
	// InvalidCategory means the category name was blank after trimming.
	InvalidCategory Kind = "InvalidCategory"
	// TagCreationFailed means unknown tags could not be created for a reason other
	// than a concurrent creation of the same name.
	TagCreationFailed Kind = "TagCreationFailed"
)

// Error is returned by Normalize. Fields lists every offending field for
// MissingFields and InvalidFields.
type Error struct {
	Kind   Kind
	Fields []string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case len(e.Fields) > 0:
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Fields, ", "))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsValidation reports whether the failure is caused by the input rather than the store.
func (e *Error) IsValidation() bool {
	return e.Kind != TagCreationFailed
}
