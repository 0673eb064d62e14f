package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryState is the status machine embedded in both ledger rows. Status, attempts and
// last error only change together through the methods below.
type DeliveryState struct {
	Status           SyncStatus `gorm:"type:varchar(16);not null;default:'PENDING';index"`
	Attempts         int        `gorm:"not null;default:0"`
	LastError        *string    `gorm:"type:text"`
	ResolvedManually bool       `gorm:"not null;default:false"`
	CreatedAt        time.Time  `gorm:"not null;index"`
	UpdatedAt        time.Time  `gorm:"not null;index"`
}

func (d *DeliveryState) State() *DeliveryState {
	return d
}

// RecordSuccess marks a transport delivery as accepted.
func (d *DeliveryState) RecordSuccess(now time.Time) error {
	if !d.Status.Dispatchable() {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, StatusSent)
	}
	d.Status = StatusSent
	d.Attempts++
	d.LastError = nil
	d.UpdatedAt = now
	return nil
}

// RecordFailure marks a failed delivery. The entry becomes DEAD once it has been attempted
// maxAttempts times; maxAttempts <= 0 disables the ceiling.
func (d *DeliveryState) RecordFailure(now time.Time, reason string, maxAttempts int) error {
	if !d.Status.Dispatchable() {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, StatusFailed)
	}
	d.Attempts++
	d.Status = StatusFailed
	if maxAttempts > 0 && d.Attempts >= maxAttempts {
		d.Status = StatusDead
	}
	d.LastError = &reason
	d.UpdatedAt = now
	return nil
}

// Resolve acknowledges the entry as reconciled by an operator. It reports whether anything
// changed; resolving a SENT entry is a no-op.
func (d *DeliveryState) Resolve(now time.Time) (bool, error) {
	switch d.Status {
	case StatusSent:
		return false, nil
	case StatusPending, StatusFailed, StatusDead:
		d.Status = StatusSent
		d.ResolvedManually = true
		d.LastError = nil
		d.UpdatedAt = now
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, StatusSent)
	}
}

// Entry is implemented by *QueueEntry and *OutboxEntry.
type Entry interface {
	Ref() EntryRef
	Namespace() string
	Rank() Priority
	DedupKey() *string
	State() *DeliveryState
}

// EntryRef identifies an entry across ledgers.
type EntryRef struct {
	Ledger LedgerKind `json:"ledger"`
	ID     uuid.UUID  `json:"id"`
}

func (r EntryRef) String() string {
	return string(r.Ledger) + "/" + r.ID.String()
}
