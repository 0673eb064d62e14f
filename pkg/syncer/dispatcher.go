package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/retailhub/hybridsync/pkg/eventbus"
	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/metrics"
	"github.com/retailhub/hybridsync/pkg/model"
	"github.com/retailhub/hybridsync/pkg/transport"
)

// DispatchSummary reports one cycle. Processed = Sent + Failed; DeadLettered is the subset of
// Failed that reached the attempts ceiling.
type DispatchSummary struct {
	Processed    int  `json:"processed"`
	Sent         int  `json:"sent"`
	Failed       int  `json:"failed"`
	DeadLettered int  `json:"dead_lettered"`
	Skipped      int  `json:"skipped"`
	Halted       bool `json:"halted"`
}

type outcome string

const (
	outcomeSent    outcome = "sent"
	outcomeFailed  outcome = "failed"
	outcomeDead    outcome = "dead"
	outcomeSkipped outcome = "skipped"
	outcomeHalted  outcome = "halted"
)

// errHalted rolls back the claim when the transport is unavailable.
var errHalted = errors.New("transport unavailable")

type candidate struct {
	entry    model.Entry
	dispatch func(ctx context.Context) (outcome, error)
}

func queueOf(r ledger.Repositories) ledger.Ledger[*model.QueueEntry] {
	return r.Queue()
}

func outboxOf(r ledger.Repositories) ledger.Ledger[*model.OutboxEntry] {
	return r.Outbox()
}

// Dispatch attempts up to limit PENDING/FAILED entries across both ledgers, one transaction per
// entry. Delivery failures are counted, not returned. A store error stops the cycle and is
// returned with the partial summary.
func (e *Engine) Dispatch(ctx context.Context, limit int) (DispatchSummary, error) {
	var summary DispatchSummary
	if limit < 1 || limit > e.opts.MaxDispatchLimit {
		return summary, NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", e.opts.MaxDispatchLimit))
	}

	candidates, err := e.candidates(ctx, limit)
	if err != nil {
		return summary, fmt.Errorf("failed to select entries: %w", err)
	}
	if len(candidates) == 0 {
		return summary, nil
	}

	for _, c := range candidates {
		ref := c.entry.Ref()
		result, err := c.dispatch(ctx)
		if err != nil {
			e.logger.Error("dispatch aborted", zap.String("entry", ref.String()), zap.Error(err))
			e.finishCycle(ctx, summary)
			return summary, fmt.Errorf("failed to dispatch %s: %w", ref, err)
		}

		if result == outcomeHalted {
			summary.Halted = true
			metrics.DispatchHaltedTotal.Inc()
			e.logger.Warn("transport unavailable, stopping dispatch cycle", zap.String("entry", ref.String()))
			break
		}

		switch result {
		case outcomeSent:
			summary.Processed++
			summary.Sent++
		case outcomeFailed:
			summary.Processed++
			summary.Failed++
		case outcomeDead:
			summary.Processed++
			summary.Failed++
			summary.DeadLettered++
		case outcomeSkipped:
			summary.Skipped++
		}
		metrics.DispatchTotal.WithLabelValues(string(ref.Ledger), e.mapper.Resolve(c.entry.Namespace()), string(result)).Inc()
	}

	e.finishCycle(ctx, summary)
	return summary, nil
}

func (e *Engine) finishCycle(ctx context.Context, summary DispatchSummary) {
	e.logger.Info("dispatch cycle finished",
		zap.Int("processed", summary.Processed),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("dead_lettered", summary.DeadLettered),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("halted", summary.Halted),
	)
	e.notify(ctx, eventbus.ChannelDispatch, eventbus.TypeDispatchCompleted, eventbus.DispatchEvent{
		Processed:    summary.Processed,
		Sent:         summary.Sent,
		Failed:       summary.Failed,
		DeadLettered: summary.DeadLettered,
		Skipped:      summary.Skipped,
		Halted:       summary.Halted,
	})
}

// candidates merges the eligible entries of both ledgers in dispatch order.
func (e *Engine) candidates(ctx context.Context, limit int) ([]candidate, error) {
	var queued, outboxed []candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		queued, err = candidatesFrom(gctx, e, queueOf, limit)
		return err
	})
	g.Go(func() error {
		var err error
		outboxed, err = candidatesFrom(gctx, e, outboxOf, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := append(queued, outboxed...)
	sort.SliceStable(all, func(i, j int) bool {
		return before(all[i].entry, all[j].entry)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func candidatesFrom[E model.Entry](ctx context.Context, e *Engine, pick func(ledger.Repositories) ledger.Ledger[E], limit int) ([]candidate, error) {
	entries, err := pick(e.store).Eligible(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		id := entry.Ref().ID
		out = append(out, candidate{
			entry: entry,
			dispatch: func(ctx context.Context) (outcome, error) {
				return dispatchEntry(ctx, e, pick, id)
			},
		})
	}
	return out, nil
}

// dispatchEntry claims, delivers and records one entry inside its own transaction.
func dispatchEntry[E model.Entry](ctx context.Context, e *Engine, pick func(ledger.Repositories) ledger.Ledger[E], id uuid.UUID) (outcome, error) {
	result := outcomeSkipped
	err := e.store.Transaction(ctx, func(tx ledger.Tx) error {
		repo := pick(tx)
		entry, err := repo.Claim(ctx, id)
		if errors.Is(err, ledger.ErrNotClaimable) {
			result = outcomeSkipped
			return nil
		}
		if err != nil {
			return err
		}

		deliverErr := e.deliver(ctx, transport.NewEnvelope(entry))
		if errors.Is(deliverErr, transport.ErrUnavailable) {
			result = outcomeHalted
			return errHalted
		}

		now := e.now()
		state := entry.State()
		var reason *string
		if deliverErr == nil {
			if err := state.RecordSuccess(now); err != nil {
				return err
			}
			result = outcomeSent
		} else {
			msg := deliverErr.Error()
			reason = &msg
			if err := state.RecordFailure(now, msg, e.opts.MaxAttempts); err != nil {
				return err
			}
			result = outcomeFailed
			if state.Status == model.StatusDead {
				result = outcomeDead
			}
			e.logger.Warn("delivery failed",
				zap.String("entry", entry.Ref().String()),
				zap.Int("attempts", state.Attempts),
				zap.String("status", state.Status.String()),
				zap.Error(deliverErr),
			)
		}

		if err := repo.Save(ctx, entry); err != nil {
			return err
		}
		return tx.Attempts().Append(ctx, model.NewAttempt(entry.Ref(), model.SourceTransport, deliverErr == nil, reason, now))
	})
	if errors.Is(err, errHalted) {
		return outcomeHalted, nil
	}
	return result, err
}

func (e *Engine) deliver(ctx context.Context, env transport.Envelope) error {
	deliverCtx, cancel := context.WithTimeout(ctx, e.opts.DeliveryTimeout)
	defer cancel()

	start := time.Now()
	err := e.transport.Deliver(deliverCtx, env)
	metrics.DeliveryDuration.WithLabelValues(string(env.Ledger)).Observe(time.Since(start).Seconds())
	return err
}

func before(a, b model.Entry) bool {
	if ra, rb := a.Rank().Rank(), b.Rank().Rank(); ra != rb {
		return ra > rb
	}
	sa, sb := a.State(), b.State()
	if !sa.CreatedAt.Equal(sb.CreatedAt) {
		return sa.CreatedAt.Before(sb.CreatedAt)
	}
	return a.Ref().ID.String() < b.Ref().ID.String()
}

// ResolvedEntry is the entry after a manual resolution. Changed is false when it was already SENT.
type ResolvedEntry struct {
	Entry   model.Entry
	Changed bool
}

// Resolve marks an entry SENT without calling the transport. The queue is searched first, then the
// outbox. A manual attempt is recorded as the audit trail; it never counts as throughput.
func (e *Engine) Resolve(ctx context.Context, id uuid.UUID) (ResolvedEntry, error) {
	var resolved ResolvedEntry
	err := e.store.Transaction(ctx, func(tx ledger.Tx) error {
		now := e.now()
		var err error
		resolved, err = resolveIn(ctx, tx.Queue(), tx.Attempts(), id, now)
		if errors.Is(err, ledger.ErrNotFound) {
			resolved, err = resolveIn(ctx, tx.Outbox(), tx.Attempts(), id, now)
		}
		return err
	})
	if err != nil {
		return ResolvedEntry{}, err
	}

	ref := resolved.Entry.Ref()
	if resolved.Changed {
		metrics.ResolvedTotal.WithLabelValues(string(ref.Ledger)).Inc()
		e.logger.Info("entry resolved manually", zap.String("entry", ref.String()))
	}
	e.notify(ctx, eventbus.ChannelEntry, eventbus.TypeEntryResolved, eventbus.ResolvedEvent{
		Ledger:    string(ref.Ledger),
		EntryID:   ref.ID.String(),
		Namespace: resolved.Entry.Namespace(),
		Changed:   resolved.Changed,
	})
	return resolved, nil
}

func resolveIn[E model.Entry](ctx context.Context, repo ledger.Ledger[E], attempts ledger.AttemptLog, id uuid.UUID, now time.Time) (ResolvedEntry, error) {
	entry, err := repo.GetForUpdate(ctx, id)
	if err != nil {
		return ResolvedEntry{}, err
	}
	changed, err := entry.State().Resolve(now)
	if err != nil {
		return ResolvedEntry{}, err
	}
	if changed {
		if err := repo.Save(ctx, entry); err != nil {
			return ResolvedEntry{}, err
		}
		if err := attempts.Append(ctx, model.NewAttempt(entry.Ref(), model.SourceManual, true, nil, now)); err != nil {
			return ResolvedEntry{}, err
		}
	}
	return ResolvedEntry{Entry: entry, Changed: changed}, nil
}
