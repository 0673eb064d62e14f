package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidStatus     = errors.New("invalid sync status")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// SyncStatus is the delivery state shared by both ledgers.
type SyncStatus string

const (
	StatusPending SyncStatus = "PENDING"
	StatusSent    SyncStatus = "SENT"
	StatusFailed  SyncStatus = "FAILED"
	// StatusDead marks entries whose retries are exhausted. Terminal, never dispatched again.
	StatusDead SyncStatus = "DEAD"
)

// Statuses lists every status in reporting order.
var Statuses = []SyncStatus{StatusPending, StatusSent, StatusFailed, StatusDead}

func ParseSyncStatus(value string) (SyncStatus, error) {
	status := SyncStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return status, nil
}

func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusDead:
		return true
	default:
		return false
	}
}

// Dispatchable reports whether the dispatcher may pick the entry up.
func (s SyncStatus) Dispatchable() bool {
	switch s {
	case StatusPending, StatusFailed:
		return true
	case StatusSent, StatusDead:
		return false
	default:
		return false
	}
}

func (s SyncStatus) String() string {
	return string(s)
}

func (s SyncStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
	}
	return string(s), nil
}

func (s *SyncStatus) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("failed to scan SyncStatus: %v", value)
	}
	parsed, err := ParseSyncStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DispatchableStatuses are the statuses the dispatcher selects.
func DispatchableStatuses() []SyncStatus {
	return []SyncStatus{StatusPending, StatusFailed}
}

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

func ParsePriority(value string) (Priority, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return PriorityNormal, nil
	}
	priority := Priority(trimmed)
	switch priority {
	case PriorityNormal, PriorityHigh:
		return priority, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, value)
	}
}

// Rank orders priorities; higher ranks are dispatched first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 0
	default:
		return 0
	}
}

// LedgerKind names one of the two delivery ledgers.
type LedgerKind string

const (
	LedgerQueue  LedgerKind = "queue"
	LedgerOutbox LedgerKind = "outbox"
)

func ParseLedgerKind(value string) (LedgerKind, error) {
	kind := LedgerKind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case LedgerQueue, LedgerOutbox:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown ledger %q", value)
	}
}
