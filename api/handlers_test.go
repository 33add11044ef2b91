/*
handlers_test.go - HTTP tests for the attendance API

Tests for:
- Single mark create/update status codes and envelope
- Tenant header and JWT actor resolution
- Search list and facet bodies
- Bulk success, partial and total failure
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

const (
	testTenant  = "tenant-1"
	testContext = "2f5c9a3e-1b7d-4c1a-9e0f-3a6b8d2c4e10"
	testUserA   = "8a1d2c3b-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
	testUserB   = "1b2c3d4e-5f6a-4b7c-8d9e-0f1a2b3c4d5e"
	testActor   = "6f2c1e0a-9b8d-4c7e-a1f2-3d4e5f6a7b8c"
	testDate    = "2024-05-01"
)

func newTestServer(t *testing.T, auth *Authenticator) (http.Handler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := attendance.NewService(attendance.ServiceConfig{Store: mem})
	return NewRouter(NewHandler(svc, auth, nil)), mem
}

func post(t *testing.T, h http.Handler, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func tenantHeaders() map[string]string {
	return map[string]string{HeaderTenantID: testTenant, HeaderUserID: testActor}
}

func markBody(user string, status attendance.Status) map[string]any {
	return map[string]any{
		"userId":         user,
		"attendanceDate": testDate,
		"attendance":     string(status),
		"contextId":      testContext,
		"context":        "cohort",
	}
}

func params(env map[string]any) map[string]any {
	p, _ := env["params"].(map[string]any)
	return p
}

func result(env map[string]any) map[string]any {
	r, _ := env["result"].(map[string]any)
	return r
}

// =============================================================================
// MARK
// =============================================================================

func TestMarkAttendance_CreateThenUpdate(t *testing.T) {
	// GIVEN: an empty store
	h, mem := newTestServer(t, nil)

	// WHEN: marking a user twice
	rec1, env1 := post(t, h, "/api/v1/attendance", markBody(testUserA, attendance.StatusPresent), tenantHeaders())
	rec2, env2 := post(t, h, "/api/v1/attendance", markBody(testUserA, attendance.StatusAbsent), tenantHeaders())

	// THEN: first is created, second updated, one record stored
	assert.Equal(t, http.StatusCreated, rec1.Code)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, attendance.APIMark, env1["id"])
	assert.Equal(t, "1.0", env1["ver"])
	assert.Equal(t, StatusSuccessful, params(env1)["status"])
	assert.Nil(t, params(env1)["err"])
	assert.NotEmpty(t, params(env1)["resmsgid"])
	assert.Equal(t, float64(http.StatusCreated), env1["responseCode"])
	assert.Equal(t, 1, mem.Len())

	data := result(env2)["data"].(map[string]any)
	assert.Equal(t, "absent", data["attendance"])
	assert.Equal(t, testTenant, data["tenantId"])
	assert.Equal(t, testActor, data["updatedBy"])
}

func TestMarkAttendance_InvalidEntry(t *testing.T) {
	h, mem := newTestServer(t, nil)
	body := markBody("not-a-uuid", "late")

	rec, env := post(t, h, "/api/v1/attendance", body, tenantHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, StatusFailed, params(env)["status"])
	assert.Equal(t, CodeBadRequest, params(env)["err"])
	assert.Contains(t, params(env)["errmsg"], "userId must be a UUID")
	assert.Equal(t, 0, mem.Len())
}

func TestMarkAttendance_MissingTenant(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec, env := post(t, h, "/api/v1/attendance", markBody(testUserA, attendance.StatusPresent), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tenantId is missing in headers", params(env)["errmsg"])
}

func TestMarkAttendance_MalformedBody(t *testing.T) {
	h, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attendance", bytes.NewBufferString("{"))
	req.Header.Set(HeaderTenantID, testTenant)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// AUTH
// =============================================================================

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAuthenticator_ActorFromToken(t *testing.T) {
	// GIVEN: a server that requires tokens
	h, _ := newTestServer(t, NewAuthenticator("s3cret"))
	headers := map[string]string{
		HeaderTenantID:  testTenant,
		"Authorization": "Bearer " + sign(t, "s3cret", jwt.MapClaims{"userId": testActor}),
	}

	// WHEN: marking with a valid token
	rec, env := post(t, h, "/api/v1/attendance", markBody(testUserA, attendance.StatusPresent), headers)

	// THEN: the claim is the actor
	require.Equal(t, http.StatusCreated, rec.Code)
	data := result(env)["data"].(map[string]any)
	assert.Equal(t, testActor, data["createdBy"])
}

func TestAuthenticator_Rejects(t *testing.T) {
	h, _ := newTestServer(t, NewAuthenticator("s3cret"))
	tests := []struct {
		name  string
		authz string
	}{
		{"missing", ""},
		{"wrong secret", "Bearer " + sign(t, "other", jwt.MapClaims{"sub": testActor})},
		{"no actor claim", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"role": "admin"})},
		{"not bearer", "Basic abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{HeaderTenantID: testTenant}
			if tt.authz != "" {
				headers["Authorization"] = tt.authz
			}

			rec, env := post(t, h, "/api/v1/attendance", markBody(testUserA, attendance.StatusPresent), headers)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, CodeUnauthorized, params(env)["err"])
		})
	}
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearchAttendance_List(t *testing.T) {
	h, _ := newTestServer(t, nil)
	post(t, h, "/api/v1/attendance", markBody(testUserA, attendance.StatusPresent), tenantHeaders())
	post(t, h, "/api/v1/attendance", markBody(testUserB, attendance.StatusAbsent), tenantHeaders())

	rec, env := post(t, h, "/api/v1/attendance/list", map[string]any{
		"filters": map[string]any{"attendance": "absent"},
	}, tenantHeaders())

	require.Equal(t, http.StatusOK, rec.Code)
	data := result(env)["data"].(map[string]any)
	list := data["attendanceList"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, testUserB, list[0].(map[string]any)["userId"])
}

func TestSearchAttendance_Facets(t *testing.T) {
	// GIVEN: one present and one absent mark in a context
	h, _ := newTestServer(t, nil)
	post(t, h, "/api/v1/attendance", markBody(testUserA, attendance.StatusPresent), tenantHeaders())
	post(t, h, "/api/v1/attendance", markBody(testUserB, attendance.StatusAbsent), tenantHeaders())

	// WHEN: faceting by contextId
	rec, env := post(t, h, "/api/v1/attendance/list", map[string]any{
		"facets": []string{"contextId"},
	}, tenantHeaders())

	// THEN: the group reports counts and fixed-point percentages
	require.Equal(t, http.StatusOK, rec.Code)
	facets := result(env)["data"].(map[string]any)["result"].(map[string]any)
	group := facets["contextId"].(map[string]any)[testContext].(map[string]any)
	assert.Equal(t, float64(1), group["present"])
	assert.Equal(t, "50.00", group["present_percentage"])
	assert.Equal(t, "50.00", group["absent_percentage"])
}

func TestSearchAttendance_InvalidFilterKey(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec, env := post(t, h, "/api/v1/attendance/list", map[string]any{
		"filters": map[string]any{"colour": "red"},
	}, tenantHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, attendance.APISearch, env["id"])
	assert.Equal(t, "Please Enter Valid Key to Search. Invalid Key entered Is colour", params(env)["errmsg"])
}

func TestSearchAttendance_MissingTenant(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec, env := post(t, h, "/api/v1/attendance/list", map[string]any{}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tenantId is missing in headers", params(env)["errmsg"])
}

// =============================================================================
// BULK
// =============================================================================

func bulkBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"attendanceDate": testDate,
		"contextId":      testContext,
		"context":        "cohort",
		"userAttendance": items,
	}
}

func TestBulkAttendance_AllSucceed(t *testing.T) {
	h, mem := newTestServer(t, nil)

	rec, env := post(t, h, "/api/v1/attendance/bulkAttendance", bulkBody(
		map[string]any{"userId": testUserA, "attendance": "present"},
		map[string]any{"userId": testUserB, "attendance": "absent"},
	), tenantHeaders())

	require.Equal(t, http.StatusCreated, rec.Code)
	res := result(env)
	assert.Equal(t, float64(2), res["totalCount"])
	responses := res["responses"].([]any)
	require.Len(t, responses, 2)
	assert.Equal(t, "created", responses[0].(map[string]any)["status"])
	assert.Equal(t, 2, mem.Len())
}

func TestBulkAttendance_Partial(t *testing.T) {
	// GIVEN: one valid and one invalid item
	h, mem := newTestServer(t, nil)

	// WHEN: posting the batch
	rec, env := post(t, h, "/api/v1/attendance/bulkAttendance", bulkBody(
		map[string]any{"userId": testUserA, "attendance": "present"},
		map[string]any{"userId": "nope", "attendance": "present"},
	), tenantHeaders())

	// THEN: 201 with the failed item echoed
	require.Equal(t, http.StatusCreated, rec.Code)
	res := result(env)
	assert.Equal(t, float64(1), res["count"])
	errs := res["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "nope", errs[0].(map[string]any)["attendance"].(map[string]any)["userId"])
	assert.Len(t, res["successresults"].([]any), 1)
	assert.Equal(t, 1, mem.Len())
}

func TestBulkAttendance_AllFail(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec, env := post(t, h, "/api/v1/attendance/bulkAttendance", bulkBody(
		map[string]any{"userId": "nope", "attendance": "present"},
	), tenantHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, attendance.APIBulk, env["id"])
	assert.Contains(t, params(env)["errmsg"], "Attendance Can not be created or updated.Error is ")
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
