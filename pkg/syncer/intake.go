package syncer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/eventbus"
	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/metrics"
	"github.com/retailhub/hybridsync/pkg/model"
)

const maxIdempotencyKeyLength = 255

type EventRequest struct {
	EventType      string      `json:"event_type"`
	Payload        model.JSONB `json:"payload"`
	IdempotencyKey *string     `json:"idempotency_key,omitempty"`
}

// EnqueueResult lists new entries under Queued and idempotency hits under Reused, in request order.
type EnqueueResult struct {
	Queued []*model.QueueEntry
	Reused []*model.QueueEntry
}

// Enqueue stores a batch of events in one transaction. Any invalid event rejects the whole batch.
func (e *Engine) Enqueue(ctx context.Context, events []EventRequest) (EnqueueResult, error) {
	normalized, err := e.validateBatch(events)
	if err != nil {
		return EnqueueResult{}, err
	}

	now := e.now()
	var result EnqueueResult
	err = e.store.Transaction(ctx, func(tx ledger.Tx) error {
		result = EnqueueResult{
			Queued: make([]*model.QueueEntry, 0, len(normalized)),
			Reused: make([]*model.QueueEntry, 0),
		}
		for _, event := range normalized {
			entry := model.NewQueueEntry(event.EventType, event.Payload, event.IdempotencyKey, now)
			stored, created, err := tx.Queue().Insert(ctx, entry)
			if err != nil {
				return fmt.Errorf("failed to enqueue %s: %w", event.EventType, err)
			}
			if created {
				result.Queued = append(result.Queued, stored)
			} else {
				result.Reused = append(result.Reused, stored)
			}
		}
		return nil
	})
	if err != nil {
		return EnqueueResult{}, err
	}

	metrics.EnqueuedTotal.WithLabelValues("queued").Add(float64(len(result.Queued)))
	metrics.EnqueuedTotal.WithLabelValues("reused").Add(float64(len(result.Reused)))
	for _, entry := range result.Queued {
		if e.mapper.Resolve(entry.Namespace()) == GeneralModule {
			metrics.UnmappedNamespaceTotal.Inc()
		}
	}
	e.logger.Debug("events enqueued",
		zap.Int("queued", len(result.Queued)),
		zap.Int("reused", len(result.Reused)),
	)
	if len(result.Queued) > 0 {
		e.notify(ctx, eventbus.ChannelIntake, eventbus.TypeEventsEnqueued, eventbus.EnqueuedEvent{
			Queued: len(result.Queued),
			Reused: len(result.Reused),
		})
	}
	return result, nil
}

func (e *Engine) validateBatch(events []EventRequest) ([]EventRequest, error) {
	if len(events) == 0 {
		return nil, NewValidationError("events", "must not be empty")
	}
	if len(events) > e.opts.MaxBatch {
		return nil, NewValidationError("events", fmt.Sprintf("at most %d events per batch", e.opts.MaxBatch))
	}

	out := make([]EventRequest, len(events))
	for i, event := range events {
		if err := e.mapper.Validate(event.EventType); err != nil {
			return nil, &ValidationError{Field: "event_type", Index: i, Reason: err.Error()}
		}
		event.EventType = strings.TrimSpace(event.EventType)

		if event.IdempotencyKey != nil {
			key := strings.TrimSpace(*event.IdempotencyKey)
			if len(key) > maxIdempotencyKeyLength {
				return nil, &ValidationError{
					Field:  "idempotency_key",
					Index:  i,
					Reason: fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLength),
				}
			}
			if key == "" {
				event.IdempotencyKey = nil
			} else {
				event.IdempotencyKey = &key
			}
		}

		if event.Payload == nil {
			event.Payload = model.JSONB{}
		}
		out[i] = event
	}
	return out, nil
}
