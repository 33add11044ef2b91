package attendance_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// marks builds n records of a status in a context.
func marks(contextID string, status attendance.Status, n int) []attendance.Record {
	out := make([]attendance.Record, n)
	for i := range out {
		out[i] = attendance.Record{TenantID: "tenant-1", ContextID: contextID, Attendance: status}
	}
	return out
}

func concat(groups ...[]attendance.Record) []attendance.Record {
	var out []attendance.Record
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func percentage(t *testing.T, g attendance.FacetGroup, status attendance.Status) string {
	t.Helper()
	s, ok := g.Stat(status)
	require.True(t, ok, "status %s missing from group %s", status, g.Value)
	return s.Percentage.StringFixed(2)
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestAggregate_CountsAndPercentages(t *testing.T) {
	// GIVEN: a context with 3 present and 1 absent
	records := concat(marks("ctx-1", attendance.StatusPresent, 3), marks("ctx-1", attendance.StatusAbsent, 1))

	// WHEN: aggregating by contextId
	res, err := attendance.Aggregate(records, "contextId", nil)

	// THEN: 75.00 / 25.00 and nothing else
	require.NoError(t, err)
	g, ok := res.Group("ctx-1")
	require.True(t, ok)
	assert.Equal(t, 4, g.Total)
	assert.Equal(t, "75.00", percentage(t, g, attendance.StatusPresent))
	assert.Equal(t, "25.00", percentage(t, g, attendance.StatusAbsent))
	assert.Len(t, g.Stats, 2)

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"present":3,"absent":1,"present_percentage":"75.00","absent_percentage":"25.00"}`, string(out))
}

func TestAggregate_CountsSumToTotal(t *testing.T) {
	records := concat(
		marks("ctx-1", attendance.StatusPresent, 2),
		marks("ctx-1", attendance.StatusOnLeave, 1),
		marks("ctx-2", attendance.StatusAbsent, 5),
	)

	res, err := attendance.Aggregate(records, "contextId", nil)

	require.NoError(t, err)
	for _, g := range res.Groups {
		sum := 0
		for _, s := range g.Stats {
			sum += s.Count
		}
		assert.Equal(t, g.Total, sum, "group %s", g.Value)
	}
	g, _ := res.Group("ctx-1")
	assert.Equal(t, "66.67", percentage(t, g, attendance.StatusPresent))
	assert.Equal(t, "33.33", percentage(t, g, attendance.StatusOnLeave))
}

func TestAggregate_PlaceholdersNeverReachOutput(t *testing.T) {
	// GIVEN: on-leave occurs globally but not in ctx-2
	records := concat(
		marks("ctx-1", attendance.StatusOnLeave, 1),
		marks("ctx-2", attendance.StatusPresent, 2),
	)

	// WHEN: aggregating with a sort, which needs the placeholders
	res, err := attendance.Aggregate(records, "contextId", &attendance.Sort{Field: "on-leave_percentage", Order: attendance.SortDesc})

	// THEN: ctx-2 carries no on-leave keys at all
	require.NoError(t, err)
	g, _ := res.Group("ctx-2")
	_, hasOnLeave := g.Stat(attendance.StatusOnLeave)
	assert.False(t, hasOnLeave)

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "on-leave")
	assert.JSONEq(t, `{"present":2,"present_percentage":"100.00"}`, string(out))
}

func TestAggregate_SortAscendingByAbsentPercentage(t *testing.T) {
	// GIVEN: three contexts with absent percentages 10, 50 and 0
	records := concat(
		marks("ctx-10", attendance.StatusAbsent, 1), marks("ctx-10", attendance.StatusPresent, 9),
		marks("ctx-50", attendance.StatusAbsent, 1), marks("ctx-50", attendance.StatusPresent, 1),
		marks("ctx-0", attendance.StatusPresent, 2),
	)

	// WHEN: sorting ascending on absent_percentage
	res, err := attendance.Aggregate(records, "contextId", &attendance.Sort{Field: "absent_percentage", Order: attendance.SortAsc})

	// THEN: 0.00, 10.00, 50.00
	require.NoError(t, err)
	assert.Equal(t, []string{"ctx-0", "ctx-10", "ctx-50"}, res.Values())
}

func TestAggregate_UnknownOrderSortsDescending(t *testing.T) {
	records := concat(
		marks("ctx-a", attendance.StatusAbsent, 1), marks("ctx-a", attendance.StatusPresent, 3),
		marks("ctx-b", attendance.StatusAbsent, 3), marks("ctx-b", attendance.StatusPresent, 1),
	)

	res, err := attendance.Aggregate(records, "contextId", &attendance.Sort{Field: "absent_percentage", Order: "sideways"})

	require.NoError(t, err)
	assert.Equal(t, []string{"ctx-b", "ctx-a"}, res.Values())
}

func TestAggregate_TiesKeepFirstSeenOrder(t *testing.T) {
	records := concat(
		marks("ctx-x", attendance.StatusPresent, 1),
		marks("ctx-y", attendance.StatusPresent, 4),
		marks("ctx-z", attendance.StatusPresent, 2),
	)

	res, err := attendance.Aggregate(records, "contextId", &attendance.Sort{Field: "present_percentage", Order: attendance.SortAsc})

	require.NoError(t, err)
	assert.Equal(t, []string{"ctx-x", "ctx-y", "ctx-z"}, res.Values())
}

func TestAggregate_StatusNameWithoutSuffixIsAccepted(t *testing.T) {
	records := concat(
		marks("ctx-a", attendance.StatusOnLeave, 1), marks("ctx-a", attendance.StatusPresent, 1),
		marks("ctx-b", attendance.StatusOnLeave, 2),
	)

	res, err := attendance.Aggregate(records, "contextId", &attendance.Sort{Field: "on-leave", Order: attendance.SortDesc})

	require.NoError(t, err)
	assert.Equal(t, []string{"ctx-b", "ctx-a"}, res.Values())
}

func TestAggregate_InvalidSortKey(t *testing.T) {
	// GIVEN: only present and absent are observed
	records := concat(marks("ctx-1", attendance.StatusPresent, 1), marks("ctx-1", attendance.StatusAbsent, 1))

	// WHEN: sorting on a status never observed
	res, err := attendance.Aggregate(records, "contextId", &attendance.Sort{Field: "on-leave_percentage", Order: attendance.SortAsc})

	// THEN: faceted sort key error, no partial result
	var ske *attendance.SortKeyError
	require.True(t, errors.As(err, &ske))
	assert.True(t, ske.Faceted)
	assert.ErrorIs(t, err, attendance.ErrInvalidSortKey)
	assert.Equal(t, "Invalid Sort Key for facets it has to be present_percentage or absent_percentage", err.Error())
	assert.Empty(t, res.Groups)
}

func TestAggregate_LiteralPercentageKeysAlwaysAccepted(t *testing.T) {
	// GIVEN: neither present nor absent was observed
	records := marks("ctx-1", attendance.StatusOnLeave, 2)

	for _, key := range []string{"present_percentage", "absent_percentage"} {
		// WHEN: sorting on the literal keys
		res, err := attendance.Aggregate(records, "contextId", &attendance.Sort{Field: key, Order: attendance.SortAsc})

		// THEN: accepted
		require.NoError(t, err, key)
		assert.Equal(t, []string{"ctx-1"}, res.Values())
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	res, err := attendance.Aggregate(nil, "contextId", &attendance.Sort{Field: "absent_percentage", Order: attendance.SortAsc})

	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestAggregate_NullGroup(t *testing.T) {
	// GIVEN: records without a session
	records := concat(marks("ctx-1", attendance.StatusPresent, 1), marks("ctx-1", attendance.StatusAbsent, 1))
	records[0].Session = "morning"

	// WHEN: faceting on session
	res, err := attendance.Aggregate(records, "session", nil)

	// THEN: the unset value forms its own bucket
	require.NoError(t, err)
	assert.Equal(t, []string{"morning", attendance.NullGroup}, res.Values())
	g, _ := res.Group(attendance.NullGroup)
	assert.Equal(t, "100.00", percentage(t, g, attendance.StatusAbsent))
}

func TestFacetResult_MarshalPreservesGroupOrder(t *testing.T) {
	records := concat(
		marks("ctx-b", attendance.StatusAbsent, 1),
		marks("ctx-a", attendance.StatusPresent, 1),
	)
	res, err := attendance.Aggregate(records, "contextId", nil)
	require.NoError(t, err)

	out, err := json.Marshal(res)

	require.NoError(t, err)
	assert.Equal(t,
		`{"ctx-b":{"absent":1,"absent_percentage":"100.00"},"ctx-a":{"present":1,"present_percentage":"100.00"}}`,
		string(out))
}

// =============================================================================
// MULTIPLE FACETS
// =============================================================================

func TestAggregateFacets_IndependentResultsInRequestOrder(t *testing.T) {
	records := concat(marks("ctx-1", attendance.StatusPresent, 2), marks("ctx-2", attendance.StatusAbsent, 1))
	records[0].Session = "am"

	res, err := attendance.AggregateFacets(records, []string{"session", "contextId"}, nil)

	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "session", res[0].Field)
	assert.Equal(t, "contextId", res[1].Field)
	assert.Equal(t, []string{"ctx-1", "ctx-2"}, res[1].Values())
}

func TestAggregateFacets_AnyFailureFailsAll(t *testing.T) {
	records := marks("ctx-1", attendance.StatusPresent, 1)

	res, err := attendance.AggregateFacets(records, []string{"contextId", "session"}, &attendance.Sort{Field: "late_percentage"})

	assert.ErrorIs(t, err, attendance.ErrInvalidSortKey)
	assert.Nil(t, res)
}
