// Package storetest is a conformance suite every attendance.Store
// implementation runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) attendance.Store

const (
	tenant1 = "tenant-1"
	tenant2 = "tenant-2"
)

func mark(tenant, user, ctx, date string, status attendance.Status) attendance.Record {
	return attendance.Record{
		TenantID:       tenant,
		UserID:         user,
		ContextID:      ctx,
		AttendanceDate: date,
		Attendance:     status,
		Context:        "cohort",
		Scope:          attendance.ScopeStudent,
		CreatedBy:      "actor-1",
		UpdatedBy:      "actor-1",
	}
}

func create(t *testing.T, s attendance.Store, records ...attendance.Record) []attendance.Record {
	t.Helper()
	out := make([]attendance.Record, len(records))
	for i, r := range records {
		created, err := s.Create(context.Background(), r)
		require.NoError(t, err)
		out[i] = created
	}
	return out
}

func users(records []attendance.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.UserID
	}
	return out
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndFindOne", func(t *testing.T) { testCreateAndFindOne(t, newStore(t)) })
	t.Run("NaturalKeyConflict", func(t *testing.T) { testNaturalKeyConflict(t, newStore(t)) })
	t.Run("FindOneTenantScoped", func(t *testing.T) { testFindOneTenantScoped(t, newStore(t)) })
	t.Run("FindAllConditions", func(t *testing.T) { testFindAllConditions(t, newStore(t)) })
	t.Run("FindAllTimestampFilter", func(t *testing.T) { testFindAllTimestampFilter(t, newStore(t)) })
	t.Run("FindAllSort", func(t *testing.T) { testFindAllSort(t, newStore(t)) })
	t.Run("FindAllSortUnsetValues", func(t *testing.T) { testFindAllSortUnsetValues(t, newStore(t)) })
	t.Run("Save", func(t *testing.T) { testSave(t, newStore(t)) })
	t.Run("Reconcile", func(t *testing.T) { testReconcile(t, newStore(t)) })
}

func testCreateAndFindOne(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	lat, lon := 12.97, 77.59
	r := mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent)
	r.Remark = "on time"
	r.Latitude, r.Longitude = &lat, &lon
	r.MetaData = map[string]any{"device": "tablet"}
	r.Session = "am"

	created, err := s.Create(ctx, r)
	require.NoError(t, err)
	assert.NotEmpty(t, created.AttendanceID)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := s.FindOne(ctx, r.Key())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.AttendanceID, found.AttendanceID)
	assert.Equal(t, attendance.StatusPresent, found.Attendance)
	assert.Equal(t, "on time", found.Remark)
	assert.Equal(t, "am", found.Session)
	require.NotNil(t, found.Latitude)
	assert.InDelta(t, 12.97, *found.Latitude, 1e-9)
	assert.InDelta(t, 77.59, *found.Longitude, 1e-9)
	assert.Equal(t, map[string]any{"device": "tablet"}, found.MetaData)
	assert.True(t, created.CreatedAt.Equal(found.CreatedAt))

	missing, err := s.FindOne(ctx, attendance.NaturalKey{TenantID: tenant1, UserID: "nobody", ContextID: "ctx-1", AttendanceDate: "2024-05-01"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testNaturalKeyConflict(t *testing.T, s attendance.Store) {
	create(t, s, mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent))

	_, err := s.Create(context.Background(), mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusAbsent))

	assert.True(t, errors.Is(err, attendance.ErrNaturalKeyConflict), "got %v", err)
}

func testFindOneTenantScoped(t *testing.T, s attendance.Store) {
	r := create(t, s, mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent))[0]

	key := r.Key()
	key.TenantID = tenant2
	found, err := s.FindOne(context.Background(), key)

	require.NoError(t, err)
	assert.Nil(t, found)
}

func testFindAllConditions(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	withRemark := mark(tenant1, "u3", "ctx-2", "2024-05-20", attendance.StatusAbsent)
	withRemark.Remark = "sick"
	create(t, s,
		mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent),
		mark(tenant1, "u2", "ctx-1", "2024-05-10", attendance.StatusAbsent),
		withRemark,
		mark(tenant1, "u4", "ctx-1", "", attendance.StatusPresent),
		mark(tenant2, "u5", "ctx-1", "2024-05-01", attendance.StatusPresent),
	)

	tests := []struct {
		name  string
		conds []attendance.Condition
		want  []string
	}{
		{"tenant only", nil, []string{"u1", "u2", "u3", "u4"}},
		{"equal", []attendance.Condition{{Field: "contextId", Op: attendance.OpEqual, Value: "ctx-1"}}, []string{"u1", "u2", "u4"}},
		{"equal status", []attendance.Condition{{Field: "attendance", Op: attendance.OpEqual, Value: "absent"}}, []string{"u2", "u3"}},
		{"is null", []attendance.Condition{{Field: "remark", Op: attendance.OpEqual, Value: nil}}, []string{"u1", "u2", "u4"}},
		{"date or null", []attendance.Condition{{Field: "attendanceDate", Op: attendance.OpEqualOrNull, Value: "2024-05-01"}}, []string{"u1", "u4"}},
		{"between", []attendance.Condition{{Field: "attendanceDate", Op: attendance.OpBetween, Value: "2024-05-01", To: "2024-05-10"}}, []string{"u1", "u2"}},
		{"anded", []attendance.Condition{
			{Field: "contextId", Op: attendance.OpEqual, Value: "ctx-1"},
			{Field: "attendance", Op: attendance.OpEqual, Value: "present"},
		}, []string{"u1", "u4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindAll(ctx, attendance.Predicate{TenantID: tenant1, Conditions: tt.conds}, nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, users(got))
		})
	}
}

func testFindAllTimestampFilter(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	created := create(t, s, mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent))[0]

	find := func(key string, at time.Time) []string {
		t.Helper()
		p, err := attendance.BuildPredicate(attendance.RecordSchema, tenant1, attendance.Filters{
			{Key: key, Value: at.Format(time.RFC3339Nano)},
		})
		require.NoError(t, err)
		got, err := s.FindAll(ctx, p, nil)
		require.NoError(t, err)
		return users(got)
	}

	assert.Equal(t, []string{"u1"}, find("createdAt", created.CreatedAt))
	assert.Equal(t, []string{"u1"}, find("updatedAt", created.UpdatedAt))
	assert.Empty(t, find("createdAt", created.CreatedAt.Add(time.Hour)))
}

func testFindAllSort(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	create(t, s,
		mark(tenant1, "u2", "ctx-1", "2024-05-01", attendance.StatusPresent),
		mark(tenant1, "u3", "ctx-1", "2024-05-01", attendance.StatusPresent),
		mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent),
	)

	desc, err := s.FindAll(ctx, attendance.Predicate{TenantID: tenant1}, &attendance.Sort{Field: "userId", Order: attendance.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2", "u1"}, users(desc))

	asc, err := s.FindAll(ctx, attendance.Predicate{TenantID: tenant1}, &attendance.Sort{Field: "userId", Order: attendance.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, users(asc))

	empty, err := s.FindAll(ctx, attendance.Predicate{TenantID: tenant2}, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testFindAllSortUnsetValues(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	first := mark(tenant1, "u2", "ctx-1", "2024-05-01", attendance.StatusPresent)
	first.Remark = "a"
	second := mark(tenant1, "u3", "ctx-1", "2024-05-01", attendance.StatusPresent)
	second.Remark = "b"
	create(t, s, first, mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent), second)

	// unset values come first ascending and last descending
	asc, err := s.FindAll(ctx, attendance.Predicate{TenantID: tenant1}, &attendance.Sort{Field: "remark", Order: attendance.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, users(asc))

	desc, err := s.FindAll(ctx, attendance.Predicate{TenantID: tenant1}, &attendance.Sort{Field: "remark", Order: attendance.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2", "u1"}, users(desc))
}

func testSave(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	created := create(t, s, mark(tenant1, "u1", "ctx-1", "2024-05-01", attendance.StatusPresent))[0]

	changed := created
	changed.Attendance = attendance.StatusAbsent
	changed.Remark = "left early"
	changed.UpdatedBy = "actor-2"
	saved, err := s.Save(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, saved.Attendance)
	assert.True(t, created.CreatedAt.Equal(saved.CreatedAt))
	assert.False(t, saved.UpdatedAt.Before(created.UpdatedAt))

	found, err := s.FindOne(ctx, created.Key())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "left early", found.Remark)
	assert.Equal(t, "actor-2", found.UpdatedBy)
	assert.Equal(t, "actor-1", found.CreatedBy)

	_, err = s.Save(ctx, attendance.Record{AttendanceID: "00000000-0000-0000-0000-000000000000", TenantID: tenant1, UserID: "x"})
	assert.True(t, errors.Is(err, attendance.ErrRecordNotFound), "got %v", err)
}

func testReconcile(t *testing.T, s attendance.Store) {
	ctx := context.Background()
	r := attendance.NewReconciler(s)
	e := attendance.Entry{
		TenantID:       tenant1,
		UserID:         "u1",
		ContextID:      "ctx-1",
		AttendanceDate: "2024-05-01",
		Attendance:     attendance.StatusPresent,
		Context:        "cohort",
	}

	first, err := r.Resolve(ctx, "actor-1", e)
	require.NoError(t, err)
	e.Attendance = attendance.StatusAbsent
	second, err := r.Resolve(ctx, "actor-2", e)
	require.NoError(t, err)

	assert.Equal(t, attendance.OutcomeCreated, first.Kind)
	assert.Equal(t, attendance.OutcomeUpdated, second.Kind)
	assert.Equal(t, first.Record.AttendanceID, second.Record.AttendanceID)
	assert.Equal(t, "actor-1", second.Record.CreatedBy)
	assert.Equal(t, "actor-2", second.Record.UpdatedBy)

	all, err := s.FindAll(ctx, attendance.Predicate{TenantID: tenant1}, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, attendance.StatusAbsent, all[0].Attendance)
}
