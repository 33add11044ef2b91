package attendance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/attendance-engine/attendance"
)

func TestMerge_OverlayWinsOnlyWhenSet(t *testing.T) {
	// GIVEN: an existing record
	lat := 10.0
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	base := attendance.Record{
		AttendanceID:   "rec-1",
		TenantID:       tenantID,
		UserID:         userA,
		ContextID:      contextID,
		AttendanceDate: markDate,
		Attendance:     attendance.StatusPresent,
		Remark:         "first",
		Latitude:       &lat,
		Session:        "am",
		Scope:          attendance.ScopeSelf,
		CreatedBy:      actor1,
		CreatedAt:      created,
	}

	// WHEN: merging an entry that sets status and longitude only
	lon := 77.5
	merged := attendance.Merge(base, attendance.Entry{
		TenantID:   "other-tenant",
		UserID:     userB,
		Attendance: attendance.StatusAbsent,
		Longitude:  &lon,
		MetaData:   map[string]any{"device": "tablet"},
	})

	// THEN: set fields win, the rest and the identity are untouched
	assert.Equal(t, attendance.StatusAbsent, merged.Attendance)
	assert.Equal(t, 77.5, *merged.Longitude)
	assert.Equal(t, 10.0, *merged.Latitude)
	assert.Equal(t, "first", merged.Remark)
	assert.Equal(t, "am", merged.Session)
	assert.Equal(t, attendance.ScopeSelf, merged.Scope)
	assert.Equal(t, map[string]any{"device": "tablet"}, merged.MetaData)

	assert.Equal(t, "rec-1", merged.AttendanceID)
	assert.Equal(t, tenantID, merged.TenantID)
	assert.Equal(t, userA, merged.UserID)
	assert.Equal(t, actor1, merged.CreatedBy)
	assert.Equal(t, created, merged.CreatedAt)
}

func TestMerge_DoesNotAliasBase(t *testing.T) {
	lat := 1.0
	base := attendance.Record{Latitude: &lat, MetaData: map[string]any{"k": "v"}}

	merged := attendance.Merge(base, attendance.Entry{})
	*merged.Latitude = 2
	merged.MetaData["k"] = "changed"

	assert.Equal(t, 1.0, lat)
	assert.Equal(t, "v", base.MetaData["k"])
}

func TestNewRecord(t *testing.T) {
	e := entry(userA, attendance.StatusPresent)

	r := attendance.NewRecord(e, actor1)

	assert.Empty(t, r.AttendanceID)
	assert.Equal(t, attendance.DefaultScope, r.Scope)
	assert.Equal(t, actor1, r.CreatedBy)
	assert.Equal(t, actor1, r.UpdatedBy)
	assert.Equal(t, e.Key(), r.Key())
}
