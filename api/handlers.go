/*
handlers.go - HTTP API handlers for attendance

PURPOSE:
  Exposes attendance.Service over REST. Handles HTTP request/response and
  JSON serialization and delegates everything else to the service.

ENDPOINTS:
  POST /api/v1/attendance                 Mark one user (create or update)
  POST /api/v1/attendance/list            Search, optionally faceted
  POST /api/v1/attendance/bulkAttendance  Mark many users for one date
  GET  /health                            Liveness

HEADERS:
  tenantid  required on every /api/v1 route
  userid    acting user when no JWT secret is configured
  Authorization: Bearer <HS256 token> when a JWT secret is configured

REQUEST FLOW:
  1. Tenant and actor middleware
  2. Decode body
  3. Call the service
  4. Classify the result (attendance.Kind) and pick the HTTP status
  5. Write the envelope

ERROR HANDLING:
  Status codes come from attendance.Kind.HTTPStatus:
  - 201: Created, or a batch with at least one success
  - 200: Updated, search
  - 400: Invalid input, or a batch where every item failed
  - 401: Bad or missing token
  - 500: Anything unexpected

SEE ALSO:
  - dto.go: Envelope and result bodies
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Success messages.
const (
	msgCreated     = "Attendance created successfully"
	msgUpdated     = "Attendance updated successfully"
	msgFetched     = "Attendance List Fetched Successfully"
	msgBulkDone    = "Bulk Attendance Updated successfully"
	msgBulkPartial = "Bulk Attendance Processed with some errors"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	Service *attendance.Service
	Auth    *Authenticator
	Log     *logger.Logger
}

// NewHandler creates a handler. A nil auth trusts the userid header.
func NewHandler(svc *attendance.Service, auth *Authenticator, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{Service: svc, Auth: auth, Log: log}
}

func (h *Handler) requestLog(r *http.Request) *logger.Logger {
	return h.Log.With(
		"apiId", apiID(r.Context()),
		"requestId", middleware.GetReqID(r.Context()),
		"tenantId", tenantID(r.Context()),
	)
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// MarkAttendance creates or updates one record.
// POST /api/v1/attendance
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	id := apiID(r.Context())
	var e attendance.Entry
	if !h.decode(w, r, &e) {
		return
	}
	e.TenantID = tenantID(r.Context())

	o, err := h.Service.Mark(r.Context(), actorID(r.Context()), e)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	kind := attendance.ClassifyOutcome(o)
	msg := msgUpdated
	if kind == attendance.KindCreated {
		msg = msgCreated
	}
	writeSuccess(w, id, kind.HTTPStatus(), msg, MarkResult{Data: o.Record})
}

// SearchAttendance lists or aggregates records.
// POST /api/v1/attendance/list
func (h *Handler) SearchAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendance.SearchRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.Search(r.Context(), tenantID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, apiID(r.Context()), attendance.KindOK.HTTPStatus(), msgFetched, SearchResult{Data: res})
}

// BulkAttendance marks many users for one date and context.
// POST /api/v1/attendance/bulkAttendance
func (h *Handler) BulkAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendance.BulkRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.Service.MarkBulk(r.Context(), tenantID(r.Context()), actorID(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	kind := attendance.ClassifyBatch(out)
	id := apiID(r.Context())
	if kind == attendance.KindBatchPartial {
		writeSuccess(w, id, kind.HTTPStatus(), msgBulkPartial, BulkPartialResult{
			Count:          out.Count,
			Errors:         out.Errors,
			SuccessResults: out.Outcomes,
		})
		return
	}
	writeSuccess(w, id, kind.HTTPStatus(), msgBulkDone, BulkResult{
		TotalCount: out.Count,
		Responses:  out.Outcomes,
	})
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResult{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.requestLog(r).Warn("invalid request body", "error", err)
		writeFailure(w, apiID(r.Context()), http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := attendance.ClassifyError(err)
	status := kind.HTTPStatus()
	if kind == attendance.KindUnexpected {
		h.requestLog(r).Error("request failed", "error", err)
	}
	writeFailure(w, apiID(r.Context()), status, errorCode(status), err.Error())
}
