package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/enrollment"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/kozaktomas/rollcall/internal/matching"
)

func TestRespondJSON_SetsContentType(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusOK, map[string]string{"status": "ok"})

	assertContentType(t, recorder, "application/json")
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusNoContent, nil)

	assertStatusCode(t, recorder, http.StatusNoContent)
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError_ContainsErrorKey(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, "something went wrong")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "something went wrong")
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "capacity",
			err:     fmt.Errorf("enroll: %w", &enrollment.CapacityError{Identity: "alice", Limit: 10, Count: 10}),
			status:  http.StatusConflict,
			message: "embedding limit reached",
		},
		{
			name:    "store failure",
			err:     database.NewStoreError("add", "alice", errors.New("disk full")),
			status:  http.StatusInternalServerError,
			message: "failed to save enrollment",
		},
		{
			name:    "session not found",
			err:     fmt.Errorf("%w: x", attendance.ErrSessionNotFound),
			status:  http.StatusNotFound,
			message: "session not found",
		},
		{
			name:    "record not found",
			err:     attendance.ErrRecordNotFound,
			status:  http.StatusNotFound,
			message: "record not found",
		},
		{
			name:    "inactive session",
			err:     attendance.ErrSessionInactive,
			status:  http.StatusConflict,
			message: "session is not active",
		},
		{
			name:    "invalid status",
			err:     attendance.ErrInvalidStatus,
			status:  http.StatusBadRequest,
			message: attendance.ErrInvalidStatus.Error(),
		},
		{
			name:    "cross-validation",
			err:     fmt.Errorf("%w: timeout", matching.ErrCrossValidation),
			status:  http.StatusBadGateway,
			message: "cross-validation failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()

			respondServiceError(recorder, logger.Nop(), tc.err, "failed to save enrollment")

			assertStatusCode(t, recorder, tc.status)
			assertJSONError(t, recorder, tc.message)
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\r\nINFO forged"); got != "aliceINFO forged" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestHealthCheck_ReturnsStatusOk(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	recorder := httptest.NewRecorder()

	HealthCheck(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
}
