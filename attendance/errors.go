/*
errors.go - Error taxonomy for the attendance engine

ERROR CATEGORIES:
  1. Caller input errors - invalid filter/sort/facet keys, validation
     failures. Always reported, never retried.
  2. Conflict errors - natural key races on create. Retried once as update.
  3. Store errors - transient I/O failures. Propagated, not retried here.

USAGE:
  if errors.Is(err, attendance.ErrInvalidSortKey) {
      // 400
  }

SEE ALSO:
  - classify.go: maps these errors to outcome kinds
*/
package attendance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidFilterKey is returned when a filter names no known attribute.
	ErrInvalidFilterKey = errors.New("invalid filter key")

	// ErrInvalidSortKey is returned when a sort column or percentage key is unknown.
	ErrInvalidSortKey = errors.New("invalid sort key")

	// ErrInvalidFacet is returned when a facet names no known attribute.
	ErrInvalidFacet = errors.New("invalid facet")

	// ErrValidation is returned when boundary validation rejects an input.
	ErrValidation = errors.New("validation failed")

	// ErrIncompleteKey is returned when an entry cannot be resolved because
	// part of its natural key is missing.
	ErrIncompleteKey = errors.New("incomplete natural key")

	// ErrNaturalKeyConflict is returned by a Store when a create collides
	// with an existing record for the same natural key.
	ErrNaturalKeyConflict = errors.New("natural key conflict")

	// ErrRecordNotFound is returned by Save when the record no longer exists.
	ErrRecordNotFound = errors.New("attendance record not found")

	// ErrStoreUnavailable wraps transient store failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the offending input
// =============================================================================

// FilterKeyError names the first filter key that failed validation.
type FilterKeyError struct {
	Key string
}

func (e *FilterKeyError) Error() string {
	return fmt.Sprintf("Please Enter Valid Key to Search. Invalid Key entered Is %s", e.Key)
}

func (e *FilterKeyError) Unwrap() error { return ErrInvalidFilterKey }

// SortKeyError names a rejected sort key. Faceted distinguishes percentage
// sorts on facet groups from column sorts on the plain list.
type SortKeyError struct {
	Key     string
	Faceted bool
}

func (e *SortKeyError) Error() string {
	if e.Faceted {
		return "Invalid Sort Key for facets it has to be present_percentage or absent_percentage"
	}
	return fmt.Sprintf("%s Invalid sort key provide column name", e.Key)
}

func (e *SortKeyError) Unwrap() error { return ErrInvalidSortKey }

// FacetError names a facet that is not an attribute.
type FacetError struct {
	Facet string
}

func (e *FacetError) Error() string {
	return fmt.Sprintf("%s Invalid facet", e.Facet)
}

func (e *FacetError) Unwrap() error { return ErrInvalidFacet }

// ValidationError lists every field that failed boundary validation.
type ValidationError struct {
	Fields map[string]string // field -> message
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, e.Fields[name])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidFilterKey) ||
		errors.Is(err, ErrInvalidSortKey) ||
		errors.Is(err, ErrInvalidFacet) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrIncompleteKey)
}

// IsRetryable returns true if the engine may retry the operation locally.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNaturalKeyConflict)
}
