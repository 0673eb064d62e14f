package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/eventbus"
	"github.com/retailhub/hybridsync/pkg/syncer"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) (syncer.DispatchSummary, error)
}

// Relay runs one dispatch cycle per poll interval until its context is cancelled. Events received
// through WakeOn start a cycle early and restart the interval.
type Relay struct {
	dispatcher   Dispatcher
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
	wake         <-chan eventbus.Event
}

func NewRelay(dispatcher Dispatcher, logger *zap.Logger, pollInterval time.Duration, batchSize int) *Relay {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		dispatcher:   dispatcher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// WakeOn must be called before Run.
func (r *Relay) WakeOn(events <-chan eventbus.Event) {
	r.wake = events
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("sync relay starting",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	wake := r.wake
	r.dispatchOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("sync relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.dispatchOnce(ctx)
		case event, ok := <-wake:
			if !ok {
				r.logger.Warn("wake subscription closed, polling only")
				wake = nil
				continue
			}
			r.logger.Debug("woken by notification", zap.String("type", event.Type))
			r.dispatchOnce(ctx)
			ticker.Reset(r.pollInterval)
		}
	}
}

func (r *Relay) dispatchOnce(ctx context.Context) {
	summary, err := r.dispatcher.Dispatch(ctx, r.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("dispatch cycle failed", zap.Error(err), zap.Int("processed", summary.Processed))
		return
	}
	if summary.Halted {
		r.logger.Warn("transport unavailable, waiting for next cycle", zap.Int("processed", summary.Processed))
	}
}
