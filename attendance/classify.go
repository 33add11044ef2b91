package attendance

import (
	"errors"
	"net/http"
)

// Kind is the externally visible classification of an engine result.
type Kind int

const (
	KindCreated       Kind = iota // single entry created
	KindUpdated                   // single entry updated
	KindOK                        // read succeeded
	KindBatchSuccess              // batch without errors
	KindBatchPartial              // batch with successes and errors
	KindBatchFailed               // batch with errors only
	KindInvalidInput              // caller error
	KindUnexpected                // anything else
)

var kindNames = map[Kind]string{
	KindCreated:      "created",
	KindUpdated:      "updated",
	KindOK:           "ok",
	KindBatchSuccess: "batch_success",
	KindBatchPartial: "batch_partial",
	KindBatchFailed:  "batch_failed",
	KindInvalidInput: "invalid_input",
	KindUnexpected:   "unexpected",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus maps a kind to its response status. It is pure.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindCreated, KindBatchSuccess, KindBatchPartial:
		return http.StatusCreated
	case KindUpdated, KindOK:
		return http.StatusOK
	case KindInvalidInput, KindBatchFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ClassifyOutcome maps a single resolution outcome.
func ClassifyOutcome(o Outcome) Kind {
	if o.Kind == OutcomeCreated {
		return KindCreated
	}
	return KindUpdated
}

// ClassifyError maps an error to KindInvalidInput or KindUnexpected.
func ClassifyError(err error) Kind {
	var target *BulkFailedError
	if errors.As(err, &target) {
		return KindBatchFailed
	}
	if IsClientError(err) {
		return KindInvalidInput
	}
	return KindUnexpected
}

// ClassifyBatch maps a batch outcome.
func ClassifyBatch(b BatchOutcome) Kind {
	switch {
	case b.Failed():
		return KindBatchFailed
	case b.Partial():
		return KindBatchPartial
	default:
		return KindBatchSuccess
	}
}

// BulkFailedError reports a batch in which every item failed. Only the first
// failing item's message is surfaced; the full list stays in Outcome.
type BulkFailedError struct {
	Outcome BatchOutcome
}

func (e *BulkFailedError) Error() string {
	return "Attendance Can not be created or updated.Error is " + e.Outcome.FirstError()
}
