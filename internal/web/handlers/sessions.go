package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/recognition"
)

// SessionsHandler handles attendance sessions and their records
type SessionsHandler struct {
	ledger     *attendance.Ledger
	recognizer *recognition.Recognizer
	logger     *slog.Logger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(ledger *attendance.Ledger, recognizer *recognition.Recognizer, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{
		ledger:     ledger,
		recognizer: recognizer,
		logger:     logger,
	}
}

// StatusRequest represents a manual status override
type StatusRequest struct {
	Status database.AttendanceStatus `json:"status"`
	Note   string                    `json:"note"`
}

// RecordsResponse represents the records of a session
type RecordsResponse struct {
	Session database.AttendanceSession  `json:"session"`
	Records []database.AttendanceRecord `json:"records"`
	Summary map[string]int              `json:"summary"`
}

// UnknownResponse represents the unknown-face tally of a session
type UnknownResponse struct {
	SessionID string `json:"session_id"`
	Unknown   int    `json:"unknown"`
}

// Create opens a new session
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in attendance.SessionInput
	if !decodeJSON(w, r, &in) {
		return
	}

	session, err := h.ledger.OpenSession(r.Context(), in)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to open session")
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

// List returns every session, newest first
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.ledger.Sessions(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []database.AttendanceSession{}
	}

	respondJSON(w, http.StatusOK, sessions)
}

// Get returns one session
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	session, err := h.ledger.Session(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to load session")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// Deactivate closes a session for presence records
func (h *SessionsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	if err := h.ledger.DeactivateSession(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err, "failed to deactivate session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "session_id": id.String()})
}

// Records returns the records of a session with per-status counts
func (h *SessionsHandler) Records(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	session, err := h.ledger.Session(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to load session")
		return
	}
	records, err := h.ledger.Records(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list records")
		return
	}
	if records == nil {
		records = []database.AttendanceRecord{}
	}

	summary := make(map[string]int)
	for _, rec := range records {
		summary[string(rec.Status)]++
	}

	respondJSON(w, http.StatusOK, RecordsResponse{
		Session: *session,
		Records: records,
		Summary: summary,
	})
}

// SetStatus overrides the status of one identity
func (h *SessionsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := h.ledger.SetStatus(r.Context(), id, identity, req.Status, req.Note)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to update record")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// Unknown returns the unknown-face tally of a session
func (h *SessionsHandler) Unknown(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.ledger.Session(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err, "failed to load session")
		return
	}

	respondJSON(w, http.StatusOK, UnknownResponse{
		SessionID: id.String(),
		Unknown:   h.recognizer.UnknownCount(id),
	})
}
