package syncer

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/metrics"
	"github.com/retailhub/hybridsync/pkg/model"
)

// Totals counts entries by status. Total = Pending + Processed + Failed + Dead.
type Totals struct {
	Total     int64   `json:"total"`
	Pending   int64   `json:"pending"`
	Processed int64   `json:"processed"`
	Failed    int64   `json:"failed"`
	Dead      int64   `json:"dead"`
	Percent   float64 `json:"percent"`
}

func (t *Totals) add(status model.SyncStatus, count int64) {
	switch status {
	case model.StatusPending:
		t.Pending += count
	case model.StatusSent:
		t.Processed += count
	case model.StatusFailed:
		t.Failed += count
	case model.StatusDead:
		t.Dead += count
	}
	t.Total = t.Pending + t.Processed + t.Failed + t.Dead
	t.Percent = percentOf(t.Processed, t.Total)
}

func (t Totals) plus(other Totals) Totals {
	sum := Totals{
		Pending:   t.Pending + other.Pending,
		Processed: t.Processed + other.Processed,
		Failed:    t.Failed + other.Failed,
		Dead:      t.Dead + other.Dead,
	}
	sum.Total = sum.Pending + sum.Processed + sum.Failed + sum.Dead
	sum.Percent = percentOf(sum.Processed, sum.Total)
	return sum
}

type Components struct {
	Queue  Totals `json:"queue"`
	Outbox Totals `json:"outbox"`
}

type HybridTotals struct {
	Totals
	Components Components `json:"components"`
}

type ModuleTotals struct {
	Module string `json:"module"`
	Totals
	Queue  Totals `json:"queue"`
	Outbox Totals `json:"outbox"`
}

// Summary returns the unified totals across both ledgers.
func (e *Engine) Summary(ctx context.Context) (Totals, error) {
	hybrid, err := e.Hybrid(ctx)
	if err != nil {
		return Totals{}, err
	}
	return hybrid.Totals, nil
}

// Hybrid returns the unified totals plus one subtotal per ledger.
func (e *Engine) Hybrid(ctx context.Context) (HybridTotals, error) {
	queue, outbox, err := e.tallies(ctx)
	if err != nil {
		return HybridTotals{}, err
	}

	var components Components
	for _, row := range queue {
		components.Queue.add(row.Status, row.Count)
	}
	for _, row := range outbox {
		components.Outbox.add(row.Status, row.Count)
	}

	recordBacklog(model.LedgerQueue, components.Queue)
	recordBacklog(model.LedgerOutbox, components.Outbox)

	return HybridTotals{
		Totals:     components.Queue.plus(components.Outbox),
		Components: components,
	}, nil
}

// Breakdown groups both ledgers by module, sorted by module name. Summing any counter over the
// result gives the Summary value.
func (e *Engine) Breakdown(ctx context.Context) ([]ModuleTotals, error) {
	queue, outbox, err := e.tallies(ctx)
	if err != nil {
		return nil, err
	}

	byModule := make(map[string]*ModuleTotals)
	row := func(namespace string) *ModuleTotals {
		module := e.mapper.Resolve(namespace)
		item, ok := byModule[module]
		if !ok {
			item = &ModuleTotals{Module: module}
			byModule[module] = item
		}
		return item
	}
	for _, tally := range queue {
		row(tally.Namespace).Queue.add(tally.Status, tally.Count)
	}
	for _, tally := range outbox {
		row(tally.Namespace).Outbox.add(tally.Status, tally.Count)
	}

	out := make([]ModuleTotals, 0, len(byModule))
	for _, item := range byModule {
		item.Totals = item.Queue.plus(item.Outbox)
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Module < out[j].Module
	})
	return out, nil
}

func (e *Engine) tallies(ctx context.Context) (queue, outbox []ledger.NamespaceTally, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		queue, err = e.store.Queue().Tally(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		outbox, err = e.store.Outbox().Tally(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return queue, outbox, nil
}

func recordBacklog(kind model.LedgerKind, totals Totals) {
	metrics.Backlog.WithLabelValues(string(kind), string(model.StatusPending)).Set(float64(totals.Pending))
	metrics.Backlog.WithLabelValues(string(kind), string(model.StatusSent)).Set(float64(totals.Processed))
	metrics.Backlog.WithLabelValues(string(kind), string(model.StatusFailed)).Set(float64(totals.Failed))
	metrics.Backlog.WithLabelValues(string(kind), string(model.StatusDead)).Set(float64(totals.Dead))
}

func percentOf(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
