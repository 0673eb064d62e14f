package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/bootstrap"
	"github.com/retailhub/hybridsync/pkg/config"
	"github.com/retailhub/hybridsync/pkg/eventbus"
	"github.com/retailhub/hybridsync/pkg/logging"
	"github.com/retailhub/hybridsync/pkg/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start sync engine", zap.Error(err))
	}
	defer rt.Close()

	relay := outbox.NewRelay(rt.Engine, logger, cfg.Sync.Relay.PollInterval, cfg.Sync.Relay.BatchSize)
	if rt.Bus != nil {
		events, err := rt.Bus.Subscribe(ctx, eventbus.ChannelIntake)
		if err != nil {
			logger.Warn("intake notifications unavailable, polling only", zap.Error(err))
		} else {
			relay.WakeOn(events)
		}
	}
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sync relay stopped with error", zap.Error(err))
	}
	logger.Info("sync relay stopped")
}
