package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/config"
	"github.com/retailhub/hybridsync/pkg/model"
)

type recordingWriter struct {
	messages []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	return nil
}

type recordingPublisher struct {
	msgs []*nats.Msg
}

func (p *recordingPublisher) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	p.msgs = append(p.msgs, m)
	return &nats.PubAck{Stream: "HYBRIDSYNC", Sequence: uint64(len(p.msgs))}, nil
}

func TestNewEnvelope(t *testing.T) {
	key := "sale-77"
	queued := model.NewQueueEntry("sales.created", model.JSONB{"total": 12}, &key, time.Now())
	queued.Attempts = 2

	env := NewEnvelope(queued)
	assert.Equal(t, queued.ID, env.ID)
	assert.Equal(t, model.LedgerQueue, env.Ledger)
	assert.Equal(t, "sales.created", env.Type)
	assert.Equal(t, 3, env.Attempt)
	assert.Equal(t, &key, env.IdempotencyKey)
	assert.Equal(t, queued.ID.String(), env.Key())

	outbox := model.NewOutboxEntry("inventory.item", "sku-9", model.OperationDelete, nil, model.PriorityHigh, time.Now())
	env = NewEnvelope(outbox)
	assert.Equal(t, "sku-9", env.EntityID)
	assert.Equal(t, model.OperationDelete, env.Operation)
	assert.Equal(t, "inventory.item:sku-9", env.Key())
}

func TestKafkaTransportHeaders(t *testing.T) {
	writer := &recordingWriter{}
	tr := &KafkaTransport{writer: writer, topic: "hybridsync.events"}
	key := "k-1"
	env := NewEnvelope(model.NewQueueEntry("inventory.adjusted", nil, &key, time.Now()))

	require.NoError(t, tr.Deliver(context.Background(), env))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "hybridsync.events", msg.Topic)
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, env.ID.String(), headers[headerEntryID])
	assert.Equal(t, "queue", headers[headerLedger])
	assert.Equal(t, "k-1", headers[headerIdempotencyKey])

	var decoded Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, env.ID, decoded.ID)
}

func TestNATSTransportSetsMessageID(t *testing.T) {
	publisher := &recordingPublisher{}
	tr := &NATSTransport{js: publisher, subjectPrefix: "hybridsync"}
	env := NewEnvelope(model.NewOutboxEntry("customers.profile", "c-1", model.OperationUpdate, nil, model.PriorityNormal, time.Now()))

	require.NoError(t, tr.Deliver(context.Background(), env))
	require.Len(t, publisher.msgs, 1)
	assert.Equal(t, "hybridsync.outbox.customers.profile", publisher.msgs[0].Subject)
	assert.Equal(t, env.ID.String(), publisher.msgs[0].Header.Get(nats.MsgIdHdr))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	refused := errors.New("connection refused")
	calls := 0
	inner := Func(func(context.Context, Envelope) error {
		calls++
		return refused
	})
	breaker := NewBreaker(inner, config.BreakerConfig{MaxRequests: 1, Timeout: time.Minute, FailureThreshold: 3}, zap.NewNop())
	env := Envelope{Type: "sales.created"}

	for i := 0; i < 3; i++ {
		err := breaker.Deliver(context.Background(), env)
		assert.ErrorIs(t, err, refused)
	}
	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	err := breaker.Deliver(context.Background(), env)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, calls)
}

func TestBreakerPassesSuccess(t *testing.T) {
	breaker := NewBreaker(Func(func(context.Context, Envelope) error { return nil }), config.BreakerConfig{}, zap.NewNop())
	assert.NoError(t, breaker.Deliver(context.Background(), Envelope{}))
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}
