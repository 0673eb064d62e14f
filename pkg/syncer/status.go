package syncer

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// StatusQuery selects entries for the raw listing. Ledger is "all" (or empty), "queue" or "outbox".
type StatusQuery struct {
	Ledger string
	Status *model.SyncStatus
	Limit  int
	Offset int
}

type Page[E model.Entry] struct {
	Items []E
	Total int64
}

// StatusListing holds one page per requested ledger; a ledger not requested is nil.
type StatusListing struct {
	Queue  *Page[*model.QueueEntry]
	Outbox *Page[*model.OutboxEntry]
	Limit  int
	Offset int
}

// List pages through entries newest first. Limit and offset apply to each ledger separately.
func (e *Engine) List(ctx context.Context, q StatusQuery) (StatusListing, error) {
	wantQueue, wantOutbox := true, true
	switch strings.ToLower(strings.TrimSpace(q.Ledger)) {
	case "", "all":
	default:
		kind, err := model.ParseLedgerKind(q.Ledger)
		if err != nil {
			return StatusListing{}, NewValidationError("ledger", "must be all, queue or outbox")
		}
		wantQueue = kind == model.LedgerQueue
		wantOutbox = kind == model.LedgerOutbox
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	filter := ledger.ListFilter{Status: q.Status, Limit: limit, Offset: offset}

	listing := StatusListing{Limit: limit, Offset: offset}
	g, gctx := errgroup.WithContext(ctx)
	if wantQueue {
		g.Go(func() error {
			page, err := pageOf(gctx, e.store.Queue(), filter)
			listing.Queue = page
			return err
		})
	}
	if wantOutbox {
		g.Go(func() error {
			page, err := pageOf(gctx, e.store.Outbox(), filter)
			listing.Outbox = page
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return StatusListing{}, err
	}
	return listing, nil
}

func pageOf[E model.Entry](ctx context.Context, l ledger.Ledger[E], filter ledger.ListFilter) (*Page[E], error) {
	items, total, err := l.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []E{}
	}
	return &Page[E]{Items: items, Total: total}, nil
}

// Attempts returns the delivery history of one entry, oldest first, including manual resolutions.
func (e *Engine) Attempts(ctx context.Context, id uuid.UUID) ([]model.Attempt, error) {
	ref := model.EntryRef{Ledger: model.LedgerQueue, ID: id}
	if _, err := e.store.Queue().Get(ctx, id); err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			return nil, err
		}
		if _, err := e.store.Outbox().Get(ctx, id); err != nil {
			return nil, err
		}
		ref.Ledger = model.LedgerOutbox
	}
	return e.store.Attempts().ForEntry(ctx, ref)
}
