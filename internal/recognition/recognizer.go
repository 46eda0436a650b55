// Package recognition runs the matcher on incoming frames and turns decisions into attendance.
package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/face"
	"github.com/kozaktomas/rollcall/internal/matching"
	"github.com/kozaktomas/rollcall/internal/vecmath"
)

// Frame is one probe submitted for recognition.
type Frame struct {
	Embedding vecmath.Vector     `json:"embedding"`
	SessionID uuid.UUID          `json:"session_id,omitzero"`
	Threshold *float64           `json:"threshold,omitempty"`
	Image     *face.ImageContext `json:"image,omitempty"`
	ImageRef  string             `json:"image_ref,omitempty"`
}

// Outcome is the result of processing a frame.
type Outcome struct {
	Decision     matching.Decision          `json:"decision"`
	Record       *database.AttendanceRecord `json:"record,omitempty"`
	Recorded     bool                       `json:"recorded"`
	Debounced    bool                       `json:"debounced"`
	UnknownCount int                        `json:"unknown_count,omitempty"`
}

// Recognizer identifies probes and, when a session is given, records attendance
// under the debounce policy. It keeps a per-session tally of unknown faces.
type Recognizer struct {
	engine    *matching.Engine
	ledger    *attendance.Ledger
	debouncer *attendance.Debouncer
	logger    *slog.Logger

	mu      sync.Mutex
	unknown map[uuid.UUID]int
}

// NewRecognizer creates a recognizer. A nil debouncer disables rate limiting.
func NewRecognizer(engine *matching.Engine, ledger *attendance.Ledger, debouncer *attendance.Debouncer, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		engine:    engine,
		ledger:    ledger,
		debouncer: debouncer,
		logger:    logger,
		unknown:   make(map[uuid.UUID]int),
	}
}

// ProcessFrame identifies the probe. Without a session ID only the decision is returned.
// With one, the session must exist and be active; an accepted identity is recorded
// present and an unknown face increments the session's unknown tally.
func (r *Recognizer) ProcessFrame(ctx context.Context, frame Frame) (*Outcome, error) {
	hasSession := frame.SessionID != uuid.Nil
	if hasSession {
		session, err := r.ledger.Session(ctx, frame.SessionID)
		if err != nil {
			return nil, err
		}
		if !session.Active {
			return nil, fmt.Errorf("%w: %s", attendance.ErrSessionInactive, session.ID)
		}
	}

	var opts []matching.IdentifyOption
	if frame.Threshold != nil {
		opts = append(opts, matching.WithThreshold(*frame.Threshold))
	}
	if !frame.Image.Empty() {
		opts = append(opts, matching.WithCrossValidation(*frame.Image))
	}

	decision, err := r.engine.Identify(ctx, frame.Embedding, opts...)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Decision: decision}
	if !hasSession {
		return outcome, nil
	}

	if decision.Accepted {
		if r.debouncer != nil && !r.debouncer.AllowAccepted(frame.SessionID, decision.Identity) {
			outcome.Debounced = true
			return outcome, nil
		}
		rec, err := r.ledger.RecordPresence(ctx, frame.SessionID, decision.Identity, decision.Confidence, frame.ImageRef)
		if err != nil {
			return nil, fmt.Errorf("record presence: %w", err)
		}
		outcome.Record = rec
		outcome.Recorded = true
		r.logger.Info("attendance recorded",
			"session", frame.SessionID,
			"identity", decision.Identity,
			"confidence", decision.Confidence,
		)
		return outcome, nil
	}

	if r.debouncer != nil && !r.debouncer.AllowUnknown(frame.SessionID) {
		outcome.Debounced = true
		outcome.UnknownCount = r.UnknownCount(frame.SessionID)
		return outcome, nil
	}

	r.mu.Lock()
	r.unknown[frame.SessionID]++
	outcome.UnknownCount = r.unknown[frame.SessionID]
	r.mu.Unlock()

	r.logger.Info("unknown face",
		"session", frame.SessionID,
		"candidate", decision.Candidate,
		"distance", decision.Distance,
		"vetoed", decision.Vetoed,
	)
	return outcome, nil
}

// UnknownCount returns the unknown-face tally of a session.
func (r *Recognizer) UnknownCount(sessionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unknown[sessionID]
}

// ResetSession drops the tally and cooldown state of a session.
func (r *Recognizer) ResetSession(sessionID uuid.UUID) {
	r.mu.Lock()
	delete(r.unknown, sessionID)
	r.mu.Unlock()

	if r.debouncer != nil {
		r.debouncer.Forget(sessionID)
	}
}
