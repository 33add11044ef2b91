/*
Package attendance provides the attendance aggregation and reconciliation engine.

PURPOSE:
  Records and queries attendance marks for subjects inside a tenant-scoped
  context (a cohort or an event) on a calendar date. The package owns the
  parts that carry real logic:
  - Predicate construction and validation for searches
  - Faceted aggregation into per-status percentages
  - Create-or-update reconciliation on the natural key
  - Classification of outcomes into externally visible statuses

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: one persisted attendance mark
  - NaturalKey: (userId, contextId, attendanceDate), the upsert authority
  - Entry: incoming fields for a single mark (pre-validated)
  - Status / Scope: open string enums

DESIGN PRINCIPLES:
  1. Tenant isolation: every read and write carries an explicit tenant id
  2. Natural key wins: the store identity never decides create vs update
  3. Pure merge: update semantics live in Merge, not in the store

SEE ALSO:
  - predicate.go: filter validation and translation
  - facet.go: faceted aggregation
  - reconcile.go: create-or-update protocol
  - store.go: persistence contract
*/
package attendance

import (
	"strings"
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// Status is the attendance mark. The set is open: aggregation only uses the
// values actually present in the data.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusOnLeave Status = "on-leave"
)

// KnownStatuses lists the statuses accepted at the boundary.
var KnownStatuses = []Status{StatusPresent, StatusAbsent, StatusOnLeave}

// Scope classifies whose attendance is being marked.
type Scope string

const (
	ScopeSelf    Scope = "self"
	ScopeStudent Scope = "student"
)

// DefaultScope is applied on create when the entry carries none.
const DefaultScope = ScopeStudent

// DateLayout is the wire and storage format of attendanceDate.
const DateLayout = "2006-01-02"

// =============================================================================
// RECORD
// =============================================================================

// Record is a persisted attendance mark.
type Record struct {
	AttendanceID   string         `json:"attendanceId"`
	TenantID       string         `json:"tenantId"`
	UserID         string         `json:"userId"`
	AttendanceDate string         `json:"attendanceDate"`
	Attendance     Status         `json:"attendance"`
	Remark         string         `json:"remark"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	Image          string         `json:"image"`
	MetaData       map[string]any `json:"metaData"`
	SyncTime       string         `json:"syncTime"`
	Session        string         `json:"session"`
	Context        string         `json:"context"`
	ContextID      string         `json:"contextId"`
	Scope          Scope          `json:"scope"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	CreatedBy      string         `json:"createdBy"`
	UpdatedBy      string         `json:"updatedBy"`
}

// Key returns the natural key of the record.
func (r Record) Key() NaturalKey {
	return NaturalKey{
		TenantID:       r.TenantID,
		UserID:         r.UserID,
		ContextID:      r.ContextID,
		AttendanceDate: r.AttendanceDate,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (r Record) Clone() Record {
	out := r
	if r.Latitude != nil {
		v := *r.Latitude
		out.Latitude = &v
	}
	if r.Longitude != nil {
		v := *r.Longitude
		out.Longitude = &v
	}
	if r.MetaData != nil {
		out.MetaData = make(map[string]any, len(r.MetaData))
		for k, v := range r.MetaData {
			out.MetaData[k] = v
		}
	}
	return out
}

// =============================================================================
// NATURAL KEY
// =============================================================================

// NaturalKey identifies at most one record. TenantID scopes the lookup; the
// uniqueness invariant itself is on the (user, context, date) triple.
type NaturalKey struct {
	TenantID       string
	UserID         string
	ContextID      string
	AttendanceDate string
}

// Complete reports whether every component of the triple is set.
func (k NaturalKey) Complete() bool {
	return k.UserID != "" && k.ContextID != "" && k.AttendanceDate != ""
}

// String is the lock key. Tenant is excluded on purpose: the triple is unique
// across the table.
func (k NaturalKey) String() string {
	return strings.Join([]string{k.UserID, k.ContextID, k.AttendanceDate}, "|")
}

// =============================================================================
// ENTRY
// =============================================================================

// Entry carries the incoming fields of one mark. Zero values mean "not
// supplied" and never overwrite an existing record on update.
type Entry struct {
	TenantID       string         `json:"tenantId"`
	UserID         string         `json:"userId" validate:"required,uuid"`
	AttendanceDate string         `json:"attendanceDate" validate:"required,calendardate,notfuture"`
	Attendance     Status         `json:"attendance" validate:"required,status"`
	Remark         string         `json:"remark"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	Image          string         `json:"image"`
	MetaData       map[string]any `json:"metaData"`
	SyncTime       string         `json:"syncTime"`
	Session        string         `json:"session"`
	Context        string         `json:"context" validate:"required"`
	ContextID      string         `json:"contextId" validate:"required,uuid"`
	Scope          Scope          `json:"scope" validate:"omitempty,scope"`
}

// Key returns the natural key the entry resolves against.
func (e Entry) Key() NaturalKey {
	return NaturalKey{
		TenantID:       e.TenantID,
		UserID:         e.UserID,
		ContextID:      e.ContextID,
		AttendanceDate: e.AttendanceDate,
	}
}
