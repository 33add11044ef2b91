/*
store.go - Persistence contract for attendance records

PURPOSE:
  Defines the interface between the engine and durable storage. The engine
  never sees SQL or documents; it hands the store a validated Predicate and
  expects full materialization back.

KEY INTERFACES:
  Store:     find-by-natural-key, find-by-predicate, create, save
  KeyLocker: per-natural-key mutual exclusion (locker.go)

UNIQUENESS CONTRACT:
  Implementations backed by a database MUST enforce uniqueness of
  (userId, contextId, attendanceDate) and return ErrNaturalKeyConflict from
  Create when it is violated. The reconciler retries such a create once as
  an update.

IMPLEMENTATIONS:
  - attendance/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: database/sql + go-sqlite3
  - store/gormstore/gormstore.go: gorm (PostgreSQL in production)

SEE ALSO:
  - predicate.go: builds Predicate values
  - reconcile.go: the only writer
*/
package attendance

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

// Store persists attendance records. Every read is tenant-scoped through the
// Predicate or NaturalKey it receives.
type Store interface {
	// FindOne returns the record for a natural key, or nil when absent.
	FindOne(ctx context.Context, key NaturalKey) (*Record, error)

	// FindAll returns every record matching p, ordered by sort when given.
	// No store-level limit is applied.
	FindAll(ctx context.Context, p Predicate, sort *Sort) ([]Record, error)

	// Create persists a new record, assigning AttendanceID and timestamps.
	// Returns ErrNaturalKeyConflict if the natural key is taken.
	Create(ctx context.Context, r Record) (Record, error)

	// Save persists an already merged existing record and stamps UpdatedAt.
	Save(ctx context.Context, r Record) (Record, error)
}

// =============================================================================
// PREDICATE
// =============================================================================

// Op is a condition operator.
type Op int

const (
	// OpEqual matches attribute == Value.
	OpEqual Op = iota
	// OpEqualOrNull matches attribute == Value or attribute unset.
	OpEqualOrNull
	// OpBetween matches Value <= attribute <= To (closed range).
	OpBetween
)

// Condition is one ANDed clause of a Predicate.
type Condition struct {
	Field string
	Op    Op
	Value any
	To    any
}

// Predicate is a validated, tenant-scoped query. TenantID is mandatory and
// always ANDed with Conditions.
type Predicate struct {
	TenantID   string
	Conditions []Condition
}

// Matches evaluates the predicate against a record in memory. SQL stores
// translate the same semantics into WHERE clauses.
func (p Predicate) Matches(r Record) bool {
	if r.TenantID != p.TenantID {
		return false
	}
	for _, c := range p.Conditions {
		if !c.matches(r) {
			return false
		}
	}
	return true
}

func (c Condition) matches(r Record) bool {
	v, ok := r.Value(c.Field)
	switch c.Op {
	case OpEqual:
		if !ok {
			return c.Value == nil
		}
		return FormatValue(v) == FormatValue(c.Value)
	case OpEqualOrNull:
		if !ok {
			return true
		}
		return FormatValue(v) == FormatValue(c.Value)
	case OpBetween:
		if !ok {
			return false
		}
		s := FormatValue(v)
		return FormatValue(c.Value) <= s && s <= FormatValue(c.To)
	}
	return false
}

// =============================================================================
// SORT
// =============================================================================

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Normalize folds case. Search requests have already been validated to asc or
// desc; anything else reaching here sorts descending.
func (o SortOrder) Normalize() SortOrder {
	if strings.EqualFold(string(o), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// Sort is a single [field, order] pair.
type Sort struct {
	Field string
	Order SortOrder
}

// UnmarshalJSON accepts the wire form ["field", "asc"].
func (s *Sort) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("sort must be [field, order]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("sort must be [field, order], got %d elements", len(pair))
	}
	s.Field, s.Order = pair[0], SortOrder(pair[1])
	return nil
}

// MarshalJSON writes the wire form ["field", "order"].
func (s Sort) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{s.Field, string(s.Order)})
}

// SortRecords orders records in place by one attribute. Unset values sort
// before set ones in ascending order. Used by stores without a query engine.
func SortRecords(records []Record, s *Sort) {
	if s == nil {
		return
	}
	asc := s.Order.Normalize() == SortAsc
	sort.SliceStable(records, func(i, j int) bool {
		c := compareValues(records[i], records[j], s.Field)
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func compareValues(a, b Record, field string) int {
	va, okA := a.Value(field)
	vb, okB := b.Value(field)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	switch x := va.(type) {
	case float64:
		if y, ok := vb.(float64); ok {
			return cmp.Compare(x, y)
		}
	case time.Time:
		if y, ok := vb.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(FormatValue(va), FormatValue(vb))
}
