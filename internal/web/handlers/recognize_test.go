package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/face"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/kozaktomas/rollcall/internal/matching"
	"github.com/kozaktomas/rollcall/internal/recognition"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, region face.ImageContext) ([]float64, error) {
	return nil, errors.New("embedding service unavailable")
}

func recognize(env *testEnv, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	env.recognize.Recognize(recorder, jsonRequest("POST", "/api/v1/recognize", body))
	return recorder
}

func TestRecognizeHandler_Accepted(t *testing.T) {
	env := newTestEnv(t)
	env.store.Seed("alice", []float64{0, 0, 0})

	recorder := recognize(env, `{"embedding": [0, 0, 0]}`)

	assertStatusCode(t, recorder, http.StatusOK)
	var outcome recognition.Outcome
	parseJSONResponse(t, recorder, &outcome)
	if !outcome.Decision.Accepted || outcome.Decision.Identity != "alice" || outcome.Decision.Confidence != 1 {
		t.Errorf("unexpected decision %+v", outcome.Decision)
	}
}

func TestRecognizeHandler_UnknownIs200(t *testing.T) {
	env := newTestEnv(t)
	env.store.Seed("alice", []float64{0, 0, 0})

	recorder := recognize(env, `{"embedding": [0.9, 0.9, 0.9]}`)

	assertStatusCode(t, recorder, http.StatusOK)
	var outcome recognition.Outcome
	parseJSONResponse(t, recorder, &outcome)
	if outcome.Decision.Accepted || outcome.Decision.Identity != "" {
		t.Errorf("expected rejected decision, got %+v", outcome.Decision)
	}
}

func TestRecognizeHandler_EmptyStore(t *testing.T) {
	env := newTestEnv(t)

	recorder := recognize(env, `{"embedding": [0.1, 0.2]}`)

	assertStatusCode(t, recorder, http.StatusOK)
	var outcome recognition.Outcome
	parseJSONResponse(t, recorder, &outcome)
	if outcome.Decision.Accepted {
		t.Error("expected reject on empty store")
	}
}

func TestRecognizeHandler_RecordsAttendance(t *testing.T) {
	env := newTestEnv(t)
	env.store.Seed("alice", []float64{0, 0})
	session, err := env.ledger.OpenSession(context.Background(), attendance.SessionInput{ClassRef: "chem"})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	recorder := recognize(env, `{"embedding": [0.1, 0], "session_id": "`+session.ID.String()+`", "image_ref": "cam-2"}`)

	assertStatusCode(t, recorder, http.StatusOK)
	var outcome recognition.Outcome
	parseJSONResponse(t, recorder, &outcome)
	if !outcome.Recorded || outcome.Record == nil || outcome.Record.Status != database.StatusPresent {
		t.Errorf("expected recorded presence, got %+v", outcome)
	}
}

func TestRecognizeHandler_Errors(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.ledger.OpenSession(context.Background(), attendance.SessionInput{ClassRef: "chem"})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if err := env.ledger.DeactivateSession(context.Background(), session.ID); err != nil {
		t.Fatalf("DeactivateSession() error = %v", err)
	}

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"invalid json", `{`, http.StatusBadRequest, "invalid request body"},
		{"missing embedding", `{}`, http.StatusBadRequest, "embedding is required"},
		{"bad session id", `{"embedding": [1], "session_id": "nope"}`, http.StatusBadRequest, "invalid request body"},
		{"unknown session", `{"embedding": [1], "session_id": "00000000-0000-0000-0000-000000000001"}`, http.StatusNotFound, "session not found"},
		{"inactive session", `{"embedding": [1], "session_id": "` + session.ID.String() + `"}`, http.StatusConflict, "session is not active"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := recognize(env, tc.body)

			assertStatusCode(t, recorder, tc.status)
			assertJSONError(t, recorder, tc.message)
		})
	}
}

func TestRecognizeHandler_CrossValidationFailureIs502(t *testing.T) {
	env := newTestEnv(t)
	env.store.Seed("alice", []float64{0, 0, 0})
	cross := mock.NewMockEmbeddingStore()
	cross.Seed("alice", []float64{1, 0, 0})

	engine := matching.NewEngine(env.store, env.engine.Config(), matching.WithCrossValidator(cross, failingEmbedder{}))
	handler := NewRecognizeHandler(recognition.NewRecognizer(engine, env.ledger, nil, logger.Nop()), logger.Nop())

	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, jsonRequest("POST", "/api/v1/recognize",
		`{"embedding": [0, 0, 0], "image": {"image": "/9j/", "bbox": [0, 0, 10, 10]}}`))

	assertStatusCode(t, recorder, http.StatusBadGateway)
	assertJSONError(t, recorder, "cross-validation failed")
}
