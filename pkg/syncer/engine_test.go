package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/config"
	"github.com/retailhub/hybridsync/pkg/eventbus"
	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
	"github.com/retailhub/hybridsync/pkg/store/memory"
	"github.com/retailhub/hybridsync/pkg/transport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errRemoteRejected = errors.New("remote rejected event")

// stubTransport records deliveries and fails those whose payload carries "fail": true.
type stubTransport struct {
	mu        sync.Mutex
	delivered []transport.Envelope
	err       error
}

func (s *stubTransport) Deliver(_ context.Context, env transport.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, env)
	if fail, _ := env.Payload["fail"].(bool); fail {
		return errRemoteRejected
	}
	return nil
}

func (s *stubTransport) Delivered() []transport.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.Envelope, len(s.delivered))
	copy(out, s.delivered)
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type fixture struct {
	store     *memory.Store
	clock     *fakeClock
	transport transport.Transport
	publisher *recordingPublisher
	engine    *Engine
}

func newFixture(t *testing.T, tr transport.Transport, opts Options) *fixture {
	t.Helper()
	if opts.MaxBatch == 0 {
		opts.MaxBatch = 100
	}
	if opts.MaxDispatchLimit == 0 {
		opts.MaxDispatchLimit = 100
	}
	if opts.DeliveryTimeout == 0 {
		opts.DeliveryTimeout = time.Second
	}
	if opts.MaxLookbackMinutes == 0 {
		opts.MaxLookbackMinutes = 24 * 60
	}
	f := &fixture{
		store:     memory.NewStore(),
		clock:     newFakeClock(),
		transport: tr,
		publisher: &recordingPublisher{},
	}
	mapper := NewModuleMapper(config.DefaultModules, true)
	f.engine = NewEngine(f.store, tr, mapper, opts, zap.NewNop(), WithClock(f.clock.Now), WithPublisher(f.publisher))
	return f
}

func (f *fixture) enqueue(t *testing.T, events ...EventRequest) EnqueueResult {
	t.Helper()
	result, err := f.engine.Enqueue(context.Background(), events)
	require.NoError(t, err)
	return result
}

// appendOutbox writes an outbox row directly, as a domain write path would.
func (f *fixture) appendOutbox(t *testing.T, entityType, entityID string, priority model.Priority, payload model.JSONB) *model.OutboxEntry {
	t.Helper()
	entry := model.NewOutboxEntry(entityType, entityID, model.OperationUpdate, payload, priority, f.clock.Now())
	err := f.store.Transaction(context.Background(), func(tx ledger.Tx) error {
		_, _, err := tx.Outbox().Insert(context.Background(), entry)
		return err
	})
	require.NoError(t, err)
	return entry
}

func strPtr(s string) *string {
	return &s
}
