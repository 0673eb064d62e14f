package syncer

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retailhub/hybridsync/pkg/ledger"
)

// maxDurationMinutes is the longest span, in whole minutes, a time.Duration can hold.
const maxDurationMinutes = math.MaxInt64 / int64(time.Minute)

type Forecast struct {
	LookbackMinutes           int        `json:"lookback_minutes"`
	ProcessedRecent           int64      `json:"processed_recent"`
	AttemptsTotal             int64      `json:"attempts_total"`
	AttemptsSuccessful        int64      `json:"attempts_successful"`
	SuccessRate               float64    `json:"success_rate"`
	BacklogPending            int64      `json:"backlog_pending"`
	BacklogFailed             int64      `json:"backlog_failed"`
	BacklogTotal              int64      `json:"backlog_total"`
	Dead                      int64      `json:"dead"`
	EventsPerMinute           float64    `json:"events_per_minute"`
	EstimatedMinutesRemaining *float64   `json:"estimated_minutes_remaining"`
	EstimatedCompletion       *time.Time `json:"estimated_completion"`
	GeneratedAt               time.Time  `json:"generated_at"`
}

// Forecast estimates when the backlog drains from the throughput of the last lookbackMinutes.
// Only transport deliveries count as throughput; manual resolutions are excluded.
func (e *Engine) Forecast(ctx context.Context, lookbackMinutes int) (Forecast, error) {
	if lookbackMinutes < 0 || lookbackMinutes > e.opts.MaxLookbackMinutes {
		return Forecast{}, NewValidationError("lookback_minutes", fmt.Sprintf("must be between 0 and %d", e.opts.MaxLookbackMinutes))
	}

	now := e.now()
	from := now.Add(-time.Duration(lookbackMinutes) * time.Minute)

	var (
		sentQueue, sentOutbox int64
		attempts              ledger.AttemptStats
		backlog               Totals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sentQueue, err = e.store.Queue().SentBetween(gctx, from, now)
		return err
	})
	g.Go(func() error {
		var err error
		sentOutbox, err = e.store.Outbox().SentBetween(gctx, from, now)
		return err
	})
	g.Go(func() error {
		var err error
		attempts, err = e.store.Attempts().Window(gctx, from, now)
		return err
	})
	g.Go(func() error {
		queue, outbox, err := e.tallies(gctx)
		if err != nil {
			return err
		}
		for _, rows := range [][]ledger.NamespaceTally{queue, outbox} {
			for _, row := range rows {
				backlog.add(row.Status, row.Count)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Forecast{}, err
	}

	f := Forecast{
		LookbackMinutes:    lookbackMinutes,
		ProcessedRecent:    sentQueue + sentOutbox,
		AttemptsTotal:      attempts.Total,
		AttemptsSuccessful: attempts.Successful,
		SuccessRate:        percentOf(attempts.Successful, attempts.Total),
		BacklogPending:     backlog.Pending,
		BacklogFailed:      backlog.Failed,
		BacklogTotal:       backlog.Pending + backlog.Failed,
		Dead:               backlog.Dead,
		GeneratedAt:        now,
	}

	if lookbackMinutes > 0 && f.ProcessedRecent > 0 {
		f.EventsPerMinute = float64(f.ProcessedRecent) / float64(lookbackMinutes)
	}
	if f.EventsPerMinute > 0 {
		remaining := float64(f.BacklogTotal) / f.EventsPerMinute
		f.EstimatedMinutesRemaining = &remaining
		// Past the Duration range there is no completion time worth reporting.
		if remaining < float64(maxDurationMinutes) {
			completion := now.Add(time.Duration(remaining * float64(time.Minute)))
			f.EstimatedCompletion = &completion
		}
	}
	return f, nil
}
