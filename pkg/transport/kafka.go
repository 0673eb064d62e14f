package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/retailhub/hybridsync/pkg/config"
)

const (
	headerEntryID        = "hs-entry-id"
	headerLedger         = "hs-ledger"
	headerIdempotencyKey = "hs-idempotency-key"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaTransport struct {
	writer messageWriter
	topic  string
}

func NewKafkaTransport(cfg config.KafkaConfig) *KafkaTransport {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.Hash{},
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaTransport{writer: writer, topic: cfg.Topic}
}

func (t *KafkaTransport) Deliver(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: headerEntryID, Value: []byte(env.ID.String())},
		{Key: headerLedger, Value: []byte(env.Ledger)},
	}
	if env.IdempotencyKey != nil {
		headers = append(headers, kafka.Header{Key: headerIdempotencyKey, Value: []byte(*env.IdempotencyKey)})
	}

	message := kafka.Message{
		Topic:   t.topic,
		Key:     []byte(env.Key()),
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	}

	return t.writer.WriteMessages(ctx, message)
}

func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
