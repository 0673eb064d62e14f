// Package outbox lets domain write paths record entity changes for synchronization, and relays
// both ledgers to the transport on a schedule.
package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
	"github.com/retailhub/hybridsync/pkg/syncer"
)

type AppendRequest struct {
	EntityType string
	EntityID   string
	Operation  string
	Payload    model.JSONB
	Priority   model.Priority
}

type Producer struct {
	mapper *syncer.ModuleMapper
	now    func() time.Time
}

func NewProducer(mapper *syncer.ModuleMapper) *Producer {
	return &Producer{mapper: mapper, now: time.Now}
}

// Append writes an outbox row through the caller's transaction, so it commits or rolls back with
// the domain mutation it describes. It never opens a transaction of its own.
func (p *Producer) Append(ctx context.Context, tx ledger.Tx, req AppendRequest) (*model.OutboxEntry, error) {
	if err := p.mapper.Validate(req.EntityType); err != nil {
		return nil, syncer.NewValidationError("entity_type", err.Error())
	}
	entityID := strings.TrimSpace(req.EntityID)
	if entityID == "" || len(entityID) > 255 {
		return nil, syncer.NewValidationError("entity_id", "must be 1 to 255 characters")
	}
	operation := strings.ToLower(strings.TrimSpace(req.Operation))
	switch operation {
	case model.OperationCreate, model.OperationUpdate, model.OperationDelete:
	default:
		return nil, syncer.NewValidationError("operation", fmt.Sprintf("unknown operation %q", req.Operation))
	}
	priority, err := model.ParsePriority(string(req.Priority))
	if err != nil {
		return nil, syncer.NewValidationError("priority", err.Error())
	}

	entry := model.NewOutboxEntry(strings.TrimSpace(req.EntityType), entityID, operation, req.Payload, priority, p.now())
	stored, _, err := tx.Outbox().Insert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to append outbox entry: %w", err)
	}
	return stored, nil
}
