/*
dto.go - Response envelope and result bodies

PURPOSE:
  Every endpoint answers with the same envelope so clients can read the
  outcome without looking at the HTTP status:

    {
      "id": "api.post.bulkAttendance",
      "ver": "1.0",
      "ts": "2024-05-01T09:00:00Z",
      "params": {"resmsgid": "<uuid>", "status": "successful", "err": null, "errmsg": null},
      "responseCode": 201,
      "result": {...}
    }

  On failure params.status is "failed", err carries an error code and
  errmsg the message, and result is an empty object.

NAMING CONVENTION:
  - *Result: the "result" member of a success envelope

REQUEST BODIES:
  Request bodies decode straight into attendance.Entry,
  attendance.SearchRequest and attendance.BulkRequest. Validation runs in
  the attendance package, not here.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/warp/attendance-engine/attendance"
)

const envelopeVersion = "1.0"

// Envelope status values.
const (
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
)

// Error codes reported in params.err.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope wraps every response.
type Envelope struct {
	ID           string `json:"id"`
	Ver          string `json:"ver"`
	Ts           string `json:"ts"`
	Params       Params `json:"params"`
	ResponseCode int    `json:"responseCode"`
	Result       any    `json:"result"`
}

// Params carries the message id and error details.
type Params struct {
	ResMsgID       string  `json:"resmsgid"`
	Status         string  `json:"status"`
	Err            *string `json:"err"`
	ErrMsg         *string `json:"errmsg"`
	SuccessMessage string  `json:"successmessage,omitempty"`
}

// =============================================================================
// RESULT BODIES
// =============================================================================

// MarkResult is the result of a single mark.
type MarkResult struct {
	Data attendance.Record `json:"data"`
}

// SearchResult is the result of a search.
type SearchResult struct {
	Data attendance.SearchResult `json:"data"`
}

// BulkResult is the result of a batch without errors.
type BulkResult struct {
	TotalCount int                  `json:"totalCount"`
	Responses  []attendance.Outcome `json:"responses"`
}

// BulkPartialResult is the result of a batch with some failed items.
type BulkPartialResult struct {
	Count          int                     `json:"count"`
	Errors         []attendance.BatchError `json:"errors"`
	SuccessResults []attendance.Outcome    `json:"successresults"`
}

// HealthResult is the body of GET /health.
type HealthResult struct {
	Status string `json:"status"`
}

// =============================================================================
// WRITERS
// =============================================================================

func newEnvelope(apiID string, status int, at time.Time) Envelope {
	return Envelope{
		ID:           apiID,
		Ver:          envelopeVersion,
		Ts:           at.UTC().Format(time.RFC3339),
		Params:       Params{ResMsgID: uuid.NewString()},
		ResponseCode: status,
	}
}

func writeSuccess(w http.ResponseWriter, apiID string, status int, message string, result any) {
	env := newEnvelope(apiID, status, time.Now())
	env.Params.Status = StatusSuccessful
	env.Params.SuccessMessage = message
	env.Result = result
	writeJSON(w, status, env)
}

func writeFailure(w http.ResponseWriter, apiID string, status int, code, message string) {
	env := newEnvelope(apiID, status, time.Now())
	env.Params.Status = StatusFailed
	env.Params.Err = &code
	env.Params.ErrMsg = &message
	env.Result = struct{}{}
	writeJSON(w, status, env)
}

// errorCode picks params.err for a failure status.
func errorCode(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status >= 500:
		return CodeInternal
	default:
		return CodeBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
