package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/enrollment"
	"github.com/kozaktomas/rollcall/internal/face"
	"github.com/kozaktomas/rollcall/internal/matching"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes bounds request bodies; frames for cross-validation are the largest payloads.
const maxBodyBytes = 16 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a bounded request body into target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// sessionIDParam parses the {id} URL parameter.
func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// identityParam returns the normalized {identity} URL parameter.
func identityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := face.NormalizeLabel(chi.URLParam(r, "identity"))
	if identity == "" {
		respondError(w, http.StatusBadRequest, "identity is required")
		return "", false
	}
	return identity, true
}

// respondServiceError maps domain errors to HTTP responses. Internal failures are logged
// and answered with fallback instead of the error text.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, enrollment.ErrCapacityExceeded):
		respondError(w, http.StatusConflict, enrollment.ErrCapacityExceeded.Error())
	case errors.Is(err, enrollment.ErrInvalidEnrollment),
		errors.Is(err, attendance.ErrInvalidConfidence),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidIdentity),
		errors.Is(err, attendance.ErrInvalidSession):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, attendance.ErrSessionInactive):
		respondError(w, http.StatusConflict, "session is not active")
	case errors.Is(err, attendance.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, attendance.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, matching.ErrCrossValidation):
		logger.Error("cross-validation failed", "error", err)
		respondError(w, http.StatusBadGateway, "cross-validation failed")
	default:
		logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
