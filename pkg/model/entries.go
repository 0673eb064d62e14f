package model

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is an externally submitted sync event.
type QueueEntry struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	EventType      string    `gorm:"type:varchar(255);not null;index"`
	Payload        JSONB     `gorm:"type:jsonb;not null;default:'{}'"`
	IdempotencyKey *string   `gorm:"type:varchar(255);uniqueIndex:idx_sync_queue_idempotency_key"`
	DeliveryState
}

func (QueueEntry) TableName() string {
	return "sync_queue"
}

func (e *QueueEntry) Ref() EntryRef {
	return EntryRef{Ledger: LedgerQueue, ID: e.ID}
}

func (e *QueueEntry) Namespace() string {
	return e.EventType
}

func (e *QueueEntry) Rank() Priority {
	return PriorityNormal
}

func (e *QueueEntry) DedupKey() *string {
	return e.IdempotencyKey
}

func NewQueueEntry(eventType string, payload JSONB, idempotencyKey *string, now time.Time) *QueueEntry {
	if payload == nil {
		payload = JSONB{}
	}
	return &QueueEntry{
		ID:             uuid.New(),
		EventType:      eventType,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
		DeliveryState: DeliveryState{
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Outbox operations.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// OutboxEntry is an entity change written in the same transaction as the mutation it describes.
type OutboxEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	EntityType string    `gorm:"type:varchar(255);not null;index"`
	EntityID   string    `gorm:"type:varchar(255);not null;index"`
	Operation  string    `gorm:"type:varchar(32);not null"`
	Payload    JSONB     `gorm:"type:jsonb;not null;default:'{}'"`
	Priority   Priority  `gorm:"type:varchar(16);not null;default:'NORMAL';index"`
	DeliveryState
}

func (OutboxEntry) TableName() string {
	return "sync_outbox"
}

func (e *OutboxEntry) Ref() EntryRef {
	return EntryRef{Ledger: LedgerOutbox, ID: e.ID}
}

func (e *OutboxEntry) Namespace() string {
	return e.EntityType
}

func (e *OutboxEntry) Rank() Priority {
	return e.Priority
}

// DedupKey is always nil: duplicate suppression is up to the producer.
func (e *OutboxEntry) DedupKey() *string {
	return nil
}

func NewOutboxEntry(entityType, entityID, operation string, payload JSONB, priority Priority, now time.Time) *OutboxEntry {
	if payload == nil {
		payload = JSONB{}
	}
	return &OutboxEntry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Payload:    payload,
		Priority:   priority,
		DeliveryState: DeliveryState{
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

type AttemptSource string

const (
	SourceTransport AttemptSource = "transport"
	SourceManual    AttemptSource = "manual"
)

// Attempt is one append-only delivery record. Manual rows document operator resolutions and
// never count as transport throughput.
type Attempt struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key"`
	Ledger      LedgerKind    `gorm:"type:varchar(16);not null;index:idx_sync_attempts_entry"`
	EntryID     uuid.UUID     `gorm:"type:uuid;not null;index:idx_sync_attempts_entry"`
	Source      AttemptSource `gorm:"type:varchar(16);not null;default:'transport'"`
	Success     bool          `gorm:"not null"`
	Error       *string       `gorm:"type:text"`
	AttemptedAt time.Time     `gorm:"not null;index"`
}

func (Attempt) TableName() string {
	return "sync_attempts"
}

func NewAttempt(ref EntryRef, source AttemptSource, success bool, reason *string, at time.Time) *Attempt {
	return &Attempt{
		ID:          uuid.New(),
		Ledger:      ref.Ledger,
		EntryID:     ref.ID,
		Source:      source,
		Success:     success,
		Error:       reason,
		AttemptedAt: at,
	}
}
