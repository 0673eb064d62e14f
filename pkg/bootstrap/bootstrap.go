// Package bootstrap wires configuration into a running sync engine for the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/config"
	"github.com/retailhub/hybridsync/pkg/eventbus"
	"github.com/retailhub/hybridsync/pkg/store/postgres"
	redisclient "github.com/retailhub/hybridsync/pkg/store/redis"
	"github.com/retailhub/hybridsync/pkg/syncer"
	"github.com/retailhub/hybridsync/pkg/transport"
)

type Runtime struct {
	Store  *postgres.Store
	Engine *syncer.Engine
	// Bus is nil when redis is not configured.
	Bus     *eventbus.Bus
	closers []func() error
}

// Open connects the store, the transport and (when configured) redis notifications.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{}

	db, err := postgres.NewStore(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	rt.Store = db
	rt.closers = append(rt.closers, db.Close)

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}

	tr, closeTransport, err := NewTransport(cfg, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeTransport)

	var options []syncer.Option
	redis, err := redisclient.NewClient(ctx, &cfg.Redis)
	switch {
	case errors.Is(err, redisclient.ErrNotConfigured):
		logger.Info("redis not configured, notifications disabled")
	case err != nil:
		_ = rt.Close()
		return nil, err
	default:
		rt.closers = append(rt.closers, redis.Close)
		rt.Bus = eventbus.NewBus(redis.Client())
		options = append(options, syncer.WithPublisher(rt.Bus))
	}

	mapper := syncer.NewModuleMapper(cfg.Sync.Modules, cfg.Sync.StrictModules)
	rt.Engine = syncer.NewEngine(db, tr, mapper, syncer.OptionsFromConfig(cfg.Sync), logger, options...)
	return rt, nil
}

// NewTransport builds the transport named by sync.transport, behind the circuit breaker when enabled.
func NewTransport(cfg *config.Config, logger *zap.Logger) (transport.Transport, func() error, error) {
	var (
		tr      transport.Transport
		closeFn func() error
	)
	switch cfg.Sync.Transport {
	case "kafka":
		kt := transport.NewKafkaTransport(cfg.Kafka)
		tr, closeFn = kt, kt.Close
	case "nats":
		nt, err := transport.NewNATSTransport(cfg.NATS)
		if err != nil {
			return nil, nil, err
		}
		tr, closeFn = nt, nt.Close
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Sync.Transport)
	}

	logger.Info("transport configured", zap.String("transport", cfg.Sync.Transport), zap.Bool("breaker", cfg.Sync.Breaker.Enabled))
	if cfg.Sync.Breaker.Enabled {
		tr = transport.NewBreaker(tr, cfg.Sync.Breaker, logger)
	}
	return tr, closeFn, nil
}

// Close releases everything Open acquired, newest first.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
