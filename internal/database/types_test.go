package database

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEnrolledEmbedding(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		model    string
		vector   []float64
		score    float64
		wantErr  bool
	}{
		{"valid", "alice", ModelPrimary, []float64{0.1, 0.2}, 0.9, false},
		{"trims identity", "  alice ", ModelPrimary, []float64{0.1}, 0, false},
		{"empty identity", "", ModelPrimary, []float64{0.1}, 0.5, true},
		{"blank identity", "   ", ModelPrimary, []float64{0.1}, 0.5, true},
		{"empty model", "alice", "", []float64{0.1}, 0.5, true},
		{"empty vector", "alice", ModelPrimary, nil, 0.5, true},
		{"score above 1", "alice", ModelPrimary, []float64{0.1}, 1.1, true},
		{"negative score", "alice", ModelPrimary, []float64{0.1}, -0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := NewEnrolledEmbedding(tt.identity, tt.model, tt.vector, "", tt.score)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEmbedding) {
					t.Errorf("expected ErrInvalidEmbedding, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if emb.Identity != "alice" {
				t.Errorf("Identity = %q, want alice", emb.Identity)
			}
			if emb.CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}
		})
	}
}

func TestNewEnrolledEmbedding_SanitizesVector(t *testing.T) {
	emb, err := NewEnrolledEmbedding("alice", ModelPrimary, []float64{math.NaN(), 1, math.Inf(1)}, "", 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []float64{0, 1, 0}
	for i := range expected {
		if emb.Vector[i] != expected[i] {
			t.Errorf("Vector[%d] = %v, want %v", i, emb.Vector[i], expected[i])
		}
	}
}

func TestAttendanceStatusValid(t *testing.T) {
	tests := []struct {
		status AttendanceStatus
		want   bool
	}{
		{StatusPresent, true},
		{StatusAbsent, true},
		{StatusLate, true},
		{StatusExcused, true},
		{"", false},
		{"PRESENT", false},
		{"sick", false},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Errorf("AttendanceStatus(%q).Valid() = %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestAttendanceSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session AttendanceSession
		want    bool
	}{
		{"active, end passed", AttendanceSession{Active: true, EndTime: now.Add(-time.Minute)}, true},
		{"active, end now", AttendanceSession{Active: true, EndTime: now}, true},
		{"active, end in future", AttendanceSession{Active: true, EndTime: now.Add(time.Minute)}, false},
		{"active, no end", AttendanceSession{Active: true}, false},
		{"inactive, end passed", AttendanceSession{Active: false, EndTime: now.Add(-time.Hour)}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.session.Expired(now); got != tc.want {
				t.Errorf("Expired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStoreErrorIs(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStoreError("add", "alice", cause)

	if !errors.Is(err, ErrStore) {
		t.Error("expected errors.Is(err, ErrStore)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}

	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "add" {
		t.Errorf("errors.As failed or wrong op: %+v", storeErr)
	}
	if err.Error() != `store add "alice": disk full` {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRecordKey(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	rec := AttendanceRecord{SessionID: id, Identity: "alice"}

	if rec.SessionKey() != "00000000-0000-0000-0000-000000000001/alice" {
		t.Errorf("SessionKey() = %q", rec.SessionKey())
	}
	if RecordKey(id, "bob") == RecordKey(id, "alice") {
		t.Error("keys must differ per identity")
	}
}
