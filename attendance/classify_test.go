package attendance_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/attendance-engine/attendance"
)

func TestKind_HTTPStatus(t *testing.T) {
	tests := []struct {
		kind attendance.Kind
		want int
	}{
		{attendance.KindCreated, http.StatusCreated},
		{attendance.KindUpdated, http.StatusOK},
		{attendance.KindOK, http.StatusOK},
		{attendance.KindBatchSuccess, http.StatusCreated},
		{attendance.KindBatchPartial, http.StatusCreated},
		{attendance.KindBatchFailed, http.StatusBadRequest},
		{attendance.KindInvalidInput, http.StatusBadRequest},
		{attendance.KindUnexpected, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestClassifyOutcome(t *testing.T) {
	assert.Equal(t, attendance.KindCreated, attendance.ClassifyOutcome(attendance.Outcome{Kind: attendance.OutcomeCreated}))
	assert.Equal(t, attendance.KindUpdated, attendance.ClassifyOutcome(attendance.Outcome{Kind: attendance.OutcomeUpdated}))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want attendance.Kind
	}{
		{"filter key", &attendance.FilterKeyError{Key: "x"}, attendance.KindInvalidInput},
		{"sort key", &attendance.SortKeyError{Key: "x"}, attendance.KindInvalidInput},
		{"facet", &attendance.FacetError{Facet: "x"}, attendance.KindInvalidInput},
		{"validation", &attendance.ValidationError{Fields: map[string]string{"a": "b"}}, attendance.KindInvalidInput},
		{"wrapped validation", fmt.Errorf("mark: %w", &attendance.ValidationError{}), attendance.KindInvalidInput},
		{"bulk failed", &attendance.BulkFailedError{}, attendance.KindBatchFailed},
		{"store", attendance.ErrStoreUnavailable, attendance.KindUnexpected},
		{"conflict", attendance.ErrNaturalKeyConflict, attendance.KindUnexpected},
		{"other", errors.New("boom"), attendance.KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, attendance.ClassifyError(tt.err))
		})
	}
}

func TestClassifyBatch(t *testing.T) {
	ok := attendance.BatchOutcome{Count: 2, Outcomes: make([]attendance.Outcome, 2)}
	partial := attendance.BatchOutcome{Count: 1, Outcomes: make([]attendance.Outcome, 1), Errors: make([]attendance.BatchError, 1)}
	failed := attendance.BatchOutcome{Errors: make([]attendance.BatchError, 2)}

	assert.Equal(t, attendance.KindBatchSuccess, attendance.ClassifyBatch(ok))
	assert.Equal(t, attendance.KindBatchPartial, attendance.ClassifyBatch(partial))
	assert.Equal(t, attendance.KindBatchFailed, attendance.ClassifyBatch(failed))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, attendance.IsRetryable(fmt.Errorf("create: %w", attendance.ErrNaturalKeyConflict)))
	assert.False(t, attendance.IsRetryable(attendance.ErrStoreUnavailable))

	ve := &attendance.ValidationError{Fields: map[string]string{"b": "second", "a": "first"}}
	assert.Equal(t, "first; second", ve.Error())
}
