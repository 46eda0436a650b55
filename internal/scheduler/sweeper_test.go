package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database/mock"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	ledger := attendance.NewLedger(mock.NewMockLedgerStore(), attendance.WithClock(func() time.Time { return now }))

	expired, err := ledger.OpenSession(ctx, attendance.SessionInput{ClassRef: "a", StartTime: now.Add(-time.Hour), EndTime: now.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if _, err := ledger.OpenSession(ctx, attendance.SessionInput{ClassRef: "b"}); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	debouncer := attendance.NewDebouncer(time.Hour, time.Hour)
	debouncer.AllowAccepted(expired.ID, "alice")

	s := NewSweeper(ledger, debouncer, 0, nil)
	if s.Interval() != DefaultInterval {
		t.Errorf("Interval() = %v, want %v", s.Interval(), DefaultInterval)
	}

	ids, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != expired.ID {
		t.Errorf("Sweep() = %v, want [%v]", ids, expired.ID)
	}
	if debouncer.Len() != 0 {
		t.Errorf("debouncer still tracks %d windows of the expired session", debouncer.Len())
	}

	session, err := ledger.Session(ctx, expired.ID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if session.Active {
		t.Error("expired session still active")
	}

	ids, err = s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("second Sweep() = %v, want none", ids)
	}
}

func TestSweep_Error(t *testing.T) {
	store := mock.NewMockLedgerStore()
	store.DeactivateExpiredError = errors.New("boom")
	s := NewSweeper(attendance.NewLedger(store), nil, time.Minute, nil)

	if _, err := s.Sweep(context.Background()); err == nil {
		t.Error("Sweep() error = nil, want error")
	}
}

func TestStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSweeper(attendance.NewLedger(mock.NewMockLedgerStore()), nil, time.Hour, nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start() error = nil, want error")
	}
	s.Stop()
	s.Stop()
}
