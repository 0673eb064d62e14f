package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Event struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

const (
	TypeEventsEnqueued    = "events.enqueued"
	TypeDispatchCompleted = "dispatch.completed"
	TypeEntryResolved     = "entry.resolved"
)

// EnqueuedEvent is published after an intake batch stored new entries.
type EnqueuedEvent struct {
	Queued int `json:"queued"`
	Reused int `json:"reused"`
}

// DispatchEvent summarises one dispatch cycle.
type DispatchEvent struct {
	Processed    int  `json:"processed"`
	Sent         int  `json:"sent"`
	Failed       int  `json:"failed"`
	DeadLettered int  `json:"dead_lettered"`
	Skipped      int  `json:"skipped"`
	Halted       bool `json:"halted"`
}

type ResolvedEvent struct {
	Ledger    string `json:"ledger"`
	EntryID   string `json:"entry_id"`
	Namespace string `json:"namespace"`
	Changed   bool   `json:"changed"`
}

const (
	ChannelIntake   = "hs:events:intake"
	ChannelDispatch = "hs:events:dispatch"
	ChannelEntry    = "hs:events:entry"
)

type Bus struct {
	client redis.UniversalClient
}

func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

func NewEvent(eventType string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, channel string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns once the subscription is confirmed by the server. The channel is closed when
// ctx ends; payloads that are not events are dropped.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) (<-chan Event, error) {
	sub := b.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
