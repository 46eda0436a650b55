package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/matching"
)

func TestConfigHandler_Get(t *testing.T) {
	engine := matching.NewEngine(mock.NewMockEmbeddingStore(), matching.Config{Threshold: 0.45})
	handler := NewConfigHandler(testConfig(), engine)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/config", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var response ConfigResponse
	parseJSONResponse(t, recorder, &response)

	if response.Matching.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %v", response.Matching.Threshold)
	}
	if response.Matching.CrossValidationThreshold != matching.DefaultCrossValidationThreshold {
		t.Errorf("expected default cross-validation threshold, got %v", response.Matching.CrossValidationThreshold)
	}
	if response.MaxPerIdentity != 3 || response.StorageBackend != "file" {
		t.Errorf("unexpected response %+v", response)
	}
	if response.CrossValidationEnabled {
		t.Error("expected cross-validation disabled without embedder")
	}
	if response.AcceptCooldown != "2s" {
		t.Errorf("expected accept cooldown '2s', got '%s'", response.AcceptCooldown)
	}
}
