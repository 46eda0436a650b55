package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/enrollment"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/kozaktomas/rollcall/internal/matching"
	"github.com/kozaktomas/rollcall/internal/recognition"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Backend: "file", DataDir: "testdata"},
		Matching: config.MatchingConfig{
			Threshold:                0.6,
			CrossValidationThreshold: 0.5,
			MaxPerIdentity:           3,
			DuplicateCheck:           true,
		},
		Debounce: config.DebounceConfig{
			AcceptCooldown:  2 * time.Second,
			UnknownCooldown: 3 * time.Second,
		},
		Scheduler: config.SchedulerConfig{SweepInterval: time.Minute},
	}
}

// testEnv wires handlers to in-memory mock stores
type testEnv struct {
	store       *mock.MockEmbeddingStore
	ledgerStore *mock.MockLedgerStore
	engine      *matching.Engine
	manager     *enrollment.Manager
	ledger      *attendance.Ledger
	recognizer  *recognition.Recognizer

	identities *IdentitiesHandler
	recognize  *RecognizeHandler
	sessions   *SessionsHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	log := logger.Nop()

	store := mock.NewMockEmbeddingStore()
	ledgerStore := mock.NewMockLedgerStore()
	engine := matching.NewEngine(store, matching.Config{
		Threshold:                cfg.Matching.Threshold,
		CrossValidationThreshold: cfg.Matching.CrossValidationThreshold,
	}, matching.WithLogger(log))
	manager := enrollment.NewManager(store, enrollment.Config{
		MaxPerIdentity:     cfg.Matching.MaxPerIdentity,
		DuplicateThreshold: cfg.Matching.Threshold,
	}, enrollment.WithLogger(log))
	ledger := attendance.NewLedger(ledgerStore, attendance.WithLogger(log))
	recognizer := recognition.NewRecognizer(engine, ledger, nil, log)

	return &testEnv{
		store:       store,
		ledgerStore: ledgerStore,
		engine:      engine,
		manager:     manager,
		ledger:      ledger,
		recognizer:  recognizer,
		identities:  NewIdentitiesHandler(store, manager, log),
		recognize:   NewRecognizeHandler(recognizer, log),
		sessions:    NewSessionsHandler(ledger, recognizer, log),
	}
}

// jsonRequest creates a request with a JSON body
func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
