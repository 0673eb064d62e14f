package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseSyncStatus(t *testing.T) {
	cases := map[string]SyncStatus{
		"PENDING": StatusPending,
		" sent ":  StatusSent,
		"failed":  StatusFailed,
		"Dead":    StatusDead,
	}
	for input, expected := range cases {
		got, err := ParseSyncStatus(input)
		if err != nil {
			t.Fatalf("ParseSyncStatus(%q) error: %v", input, err)
		}
		if got != expected {
			t.Fatalf("ParseSyncStatus(%q) = %q, want %q", input, got, expected)
		}
	}

	if _, err := ParseSyncStatus("published"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestSyncStatusScanRejectsUnknown(t *testing.T) {
	var status SyncStatus
	if err := status.Scan([]byte("SENT")); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if status != StatusSent {
		t.Fatalf("expected SENT, got %q", status)
	}
	if err := status.Scan("in_flight"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if _, err := SyncStatus("bogus").Value(); err == nil {
		t.Fatalf("expected Value() to reject unknown status")
	}
}

func TestRecordSuccessClearsError(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reason := "timeout"
	state := DeliveryState{Status: StatusFailed, Attempts: 2, LastError: &reason}

	if err := state.RecordSuccess(now); err != nil {
		t.Fatalf("RecordSuccess() error: %v", err)
	}
	if state.Status != StatusSent || state.Attempts != 3 || state.LastError != nil || !state.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected state after success: %+v", state)
	}
	if err := state.RecordSuccess(now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition from SENT, got %v", err)
	}
}

func TestRecordFailureDeadLettersAtCeiling(t *testing.T) {
	now := time.Now()
	state := DeliveryState{Status: StatusPending}

	for i := 0; i < 2; i++ {
		if err := state.RecordFailure(now, "refused", 3); err != nil {
			t.Fatalf("RecordFailure() error: %v", err)
		}
		if state.Status != StatusFailed {
			t.Fatalf("attempt %d: expected FAILED, got %s", i+1, state.Status)
		}
	}
	if err := state.RecordFailure(now, "refused", 3); err != nil {
		t.Fatalf("RecordFailure() error: %v", err)
	}
	if state.Status != StatusDead || state.Attempts != 3 {
		t.Fatalf("expected DEAD after 3 attempts, got %s/%d", state.Status, state.Attempts)
	}
	if state.LastError == nil || *state.LastError != "refused" {
		t.Fatalf("expected last error to be kept")
	}
}

func TestRecordFailureWithoutCeiling(t *testing.T) {
	state := DeliveryState{Status: StatusPending}
	for i := 0; i < 50; i++ {
		if err := state.RecordFailure(time.Now(), "down", 0); err != nil {
			t.Fatalf("RecordFailure() error: %v", err)
		}
	}
	if state.Status != StatusFailed {
		t.Fatalf("expected FAILED without ceiling, got %s", state.Status)
	}
}

func TestResolve(t *testing.T) {
	state := DeliveryState{Status: StatusDead, Attempts: 5}
	changed, err := state.Resolve(time.Now())
	if err != nil || !changed {
		t.Fatalf("Resolve() = %v, %v", changed, err)
	}
	if state.Status != StatusSent || !state.ResolvedManually || state.Attempts != 5 {
		t.Fatalf("unexpected state after resolve: %+v", state)
	}

	changed, err = state.Resolve(time.Now())
	if err != nil || changed {
		t.Fatalf("second Resolve() should be a no-op, got %v, %v", changed, err)
	}
}

func TestPriorityParsing(t *testing.T) {
	priority, err := ParsePriority("")
	if err != nil || priority != PriorityNormal {
		t.Fatalf("empty priority should default to NORMAL, got %q, %v", priority, err)
	}
	priority, err = ParsePriority("high")
	if err != nil || priority != PriorityHigh {
		t.Fatalf("expected HIGH, got %q, %v", priority, err)
	}
	if _, err := ParsePriority("urgent"); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if PriorityHigh.Rank() <= PriorityNormal.Rank() {
		t.Fatalf("HIGH must outrank NORMAL")
	}
}
