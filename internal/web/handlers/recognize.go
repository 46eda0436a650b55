package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/rollcall/internal/recognition"
)

// RecognizeHandler handles probe identification
type RecognizeHandler struct {
	recognizer *recognition.Recognizer
	logger     *slog.Logger
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(recognizer *recognition.Recognizer, logger *slog.Logger) *RecognizeHandler {
	return &RecognizeHandler{
		recognizer: recognizer,
		logger:     logger,
	}
}

// Recognize identifies a probe embedding. With a session_id an accepted match is recorded.
// An unknown face is a 200 with accepted=false. When the request carries an image and
// the cross-validation embedder fails, the answer is 502 Bad Gateway rather than a
// Stage 1 result.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var frame recognition.Frame
	if !decodeJSON(w, r, &frame) {
		return
	}
	if len(frame.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	outcome, err := h.recognizer.ProcessFrame(r.Context(), frame)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to recognize face")
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}
