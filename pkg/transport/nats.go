package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/retailhub/hybridsync/pkg/config"
)

// duplicateWindow is how long JetStream remembers Nats-Msg-Id values.
const duplicateWindow = 10 * time.Minute

type msgPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type NATSTransport struct {
	conn          *nats.Conn
	js            msgPublisher
	subjectPrefix string
}

// NewNATSTransport connects to JetStream and creates the stream when it does not exist yet.
func NewNATSTransport(cfg config.NATSConfig) (*NATSTransport, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("hybridsync-relay"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("failed to look up stream %s: %w", cfg.Stream, err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       cfg.Stream,
			Subjects:   []string{cfg.SubjectPrefix + ".>"},
			Duplicates: duplicateWindow,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
		}
	}

	return &NATSTransport{conn: nc, js: js, subjectPrefix: cfg.SubjectPrefix}, nil
}

func (t *NATSTransport) Subject(env Envelope) string {
	return fmt.Sprintf("%s.%s.%s", t.subjectPrefix, env.Ledger, env.Type)
}

func (t *NATSTransport) Deliver(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(t.Subject(env))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, env.ID.String())

	_, err = t.js.PublishMsg(msg, nats.Context(ctx))
	return err
}

func (t *NATSTransport) Close() error {
	if t.conn != nil {
		return t.conn.Drain()
	}
	return nil
}
