package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/enrollment"
	"github.com/kozaktomas/rollcall/internal/face"
	"github.com/kozaktomas/rollcall/internal/vecmath"
)

// IdentitiesHandler handles enrollment and identity administration
type IdentitiesHandler struct {
	store   database.EmbeddingReader
	manager *enrollment.Manager
	logger  *slog.Logger
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(store database.EmbeddingReader, manager *enrollment.Manager, logger *slog.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{
		store:   store,
		manager: manager,
		logger:  logger,
	}
}

// IdentityListResponse represents the identity list response
type IdentityListResponse struct {
	Identities     []database.IdentitySummary `json:"identities"`
	MaxPerIdentity int                        `json:"max_per_identity"`
}

// IdentityResponse represents a single identity with its samples
type IdentityResponse struct {
	Identity   string                       `json:"identity"`
	Count      int                          `json:"count"`
	Embeddings []database.EnrolledEmbedding `json:"embeddings"`
}

// EnrollRequest represents an enrollment request; the identity comes from the URL
type EnrollRequest struct {
	Embedding vecmath.Vector     `json:"embedding"`
	ImageRef  string             `json:"image_ref"`
	Score     *float64           `json:"score"`
	Image     *face.ImageContext `json:"image"`
}

// List returns every enrolled identity with its sample count
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.store.Identities(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list identities")
		return
	}
	if identities == nil {
		identities = []database.IdentitySummary{}
	}

	respondJSON(w, http.StatusOK, IdentityListResponse{
		Identities:     identities,
		MaxPerIdentity: h.manager.MaxPerIdentity(),
	})
}

// Get returns the samples of one identity
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}

	embeddings, err := h.store.Get(r.Context(), identity)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to load identity")
		return
	}
	if len(embeddings) == 0 {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	respondJSON(w, http.StatusOK, IdentityResponse{
		Identity:   identity,
		Count:      len(embeddings),
		Embeddings: embeddings,
	})
}

// Enroll adds a sample to an identity
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}

	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	result, err := h.manager.Enroll(r.Context(), enrollment.Request{
		Identity: identity,
		Vector:   req.Embedding,
		ImageRef: req.ImageRef,
		Score:    req.Score,
		Image:    req.Image,
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to save enrollment")
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// Clear removes every sample of an identity
func (h *IdentitiesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}

	if err := h.manager.Clear(r.Context(), identity); err != nil {
		respondServiceError(w, h.logger, err, "failed to clear identity")
		return
	}

	h.logger.Info("identity cleared via API", "identity", sanitizeForLog(identity))
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared", "identity": identity})
}

// ClearAll removes every enrolled sample. Requires ?confirm=true.
func (h *IdentitiesHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		respondError(w, http.StatusBadRequest, "confirm=true is required to clear all identities")
		return
	}

	if err := h.manager.ClearAll(r.Context()); err != nil {
		respondServiceError(w, h.logger, err, "failed to clear identities")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
