// Package transport delivers ledger entries to the central counterpart.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/retailhub/hybridsync/pkg/model"
)

// ErrUnavailable means the transport refused to try, e.g. an open circuit breaker. The dispatcher
// treats it as "stop the cycle", not as a delivery failure.
var ErrUnavailable = errors.New("transport unavailable")

// Envelope is the wire form of an entry.
type Envelope struct {
	ID             uuid.UUID        `json:"id"`
	Ledger         model.LedgerKind `json:"ledger"`
	Type           string           `json:"type"`
	EntityID       string           `json:"entity_id,omitempty"`
	Operation      string           `json:"operation,omitempty"`
	Payload        model.JSONB      `json:"payload"`
	IdempotencyKey *string          `json:"idempotency_key,omitempty"`
	Attempt        int              `json:"attempt"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewEnvelope builds the envelope for the next delivery attempt of entry.
func NewEnvelope(entry model.Entry) Envelope {
	ref := entry.Ref()
	state := entry.State()
	env := Envelope{
		ID:             ref.ID,
		Ledger:         ref.Ledger,
		Type:           entry.Namespace(),
		IdempotencyKey: entry.DedupKey(),
		Attempt:        state.Attempts + 1,
		CreatedAt:      state.CreatedAt,
	}
	switch e := entry.(type) {
	case *model.QueueEntry:
		env.Payload = e.Payload
	case *model.OutboxEntry:
		env.Payload = e.Payload
		env.EntityID = e.EntityID
		env.Operation = e.Operation
	}
	return env
}

// Key partitions messages: entity changes stay ordered per entity.
func (e Envelope) Key() string {
	if e.EntityID != "" {
		return e.Type + ":" + e.EntityID
	}
	return e.ID.String()
}

// Transport returns nil when the counterpart accepted the envelope.
type Transport interface {
	Deliver(ctx context.Context, env Envelope) error
}

type Func func(ctx context.Context, env Envelope) error

func (f Func) Deliver(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}
