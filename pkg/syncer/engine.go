// Package syncer is the hybrid synchronization engine: intake, dispatch, manual resolution and
// the read-side progress and forecast views over both ledgers.
package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/config"
	"github.com/retailhub/hybridsync/pkg/eventbus"
	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/transport"
)

type Options struct {
	MaxBatch           int
	MaxDispatchLimit   int
	MaxAttempts        int // <= 0 retries forever
	DeliveryTimeout    time.Duration
	MaxLookbackMinutes int
}

func OptionsFromConfig(cfg config.SyncConfig) Options {
	return Options{
		MaxBatch:           cfg.MaxBatch,
		MaxDispatchLimit:   cfg.MaxDispatchLimit,
		MaxAttempts:        cfg.MaxAttempts,
		DeliveryTimeout:    cfg.DeliveryTimeout,
		MaxLookbackMinutes: cfg.MaxLookbackMinutes,
	}
}

// Publisher receives informational notifications. *eventbus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, channel string, event eventbus.Event) error
}

type Engine struct {
	store     ledger.Store
	transport transport.Transport
	mapper    *ModuleMapper
	opts      Options
	logger    *zap.Logger
	publisher Publisher
	now       func() time.Time
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(store ledger.Store, tr transport.Transport, mapper *ModuleMapper, opts Options, logger *zap.Logger, options ...Option) *Engine {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 500
	}
	if opts.MaxDispatchLimit <= 0 {
		opts.MaxDispatchLimit = 1000
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.MaxLookbackMinutes <= 0 {
		opts.MaxLookbackMinutes = 7 * 24 * 60
	}
	if int64(opts.MaxLookbackMinutes) > maxDurationMinutes {
		opts.MaxLookbackMinutes = int(maxDurationMinutes)
	}
	e := &Engine{
		store:     store,
		transport: tr,
		mapper:    mapper,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *Engine) notify(ctx context.Context, channel, eventType string, payload interface{}) {
	if e.publisher == nil {
		return
	}
	event, err := eventbus.NewEvent(eventType, payload)
	if err != nil {
		e.logger.Warn("failed to encode notification", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, channel, event); err != nil {
		e.logger.Warn("failed to publish notification", zap.String("type", eventType), zap.Error(err))
	}
}
