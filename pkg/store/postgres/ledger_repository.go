package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
)

// ledgerSchema holds what differs between the queue and outbox tables.
type ledgerSchema[E model.Entry] struct {
	kind            model.LedgerKind
	namespaceColumn string
	dedupColumn     string // empty when the ledger has no idempotency key
	dispatchOrder   string
	newEntry        func() E
}

type LedgerRepository[E model.Entry] struct {
	db *gorm.DB
	ledgerSchema[E]
}

func NewQueueRepository(db *gorm.DB) *LedgerRepository[*model.QueueEntry] {
	return &LedgerRepository[*model.QueueEntry]{
		db: db,
		ledgerSchema: ledgerSchema[*model.QueueEntry]{
			kind:            model.LedgerQueue,
			namespaceColumn: "event_type",
			dedupColumn:     "idempotency_key",
			dispatchOrder:   "created_at ASC, id ASC",
			newEntry:        func() *model.QueueEntry { return &model.QueueEntry{} },
		},
	}
}

func NewOutboxRepository(db *gorm.DB) *LedgerRepository[*model.OutboxEntry] {
	return &LedgerRepository[*model.OutboxEntry]{
		db: db,
		ledgerSchema: ledgerSchema[*model.OutboxEntry]{
			kind:            model.LedgerOutbox,
			namespaceColumn: "entity_type",
			dispatchOrder:   "CASE priority WHEN 'HIGH' THEN 0 ELSE 1 END, created_at ASC, id ASC",
			newEntry:        func() *model.OutboxEntry { return &model.OutboxEntry{} },
		},
	}
}

func (r *LedgerRepository[E]) Kind() model.LedgerKind {
	return r.kind
}

func (r *LedgerRepository[E]) Insert(ctx context.Context, entry E) (E, bool, error) {
	var zero E
	db := r.db.WithContext(ctx)

	key := entry.DedupKey()
	if key == nil || r.dedupColumn == "" {
		if err := db.Create(entry).Error; err != nil {
			return zero, false, translateError(err)
		}
		return entry, true, nil
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: r.dedupColumn}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return zero, false, translateError(result.Error)
	}
	if result.RowsAffected == 1 {
		return entry, true, nil
	}

	existing := r.newEntry()
	if err := db.Where(r.dedupColumn+" = ?", *key).First(existing).Error; err != nil {
		return zero, false, translateError(err)
	}
	return existing, false, nil
}

func (r *LedgerRepository[E]) Eligible(ctx context.Context, limit int) ([]E, error) {
	var entries []E
	err := r.db.WithContext(ctx).
		Where("status = ANY(?)", dispatchableStatuses()).
		Order(r.dispatchOrder).
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository[E]) Claim(ctx context.Context, id uuid.UUID) (E, error) {
	var zero E
	entry := r.newEntry()
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ? AND status = ANY(?)", id, dispatchableStatuses()).
		Take(entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return zero, ledger.ErrNotClaimable
	}
	if err != nil {
		return zero, err
	}
	return entry, nil
}

func (r *LedgerRepository[E]) GetForUpdate(ctx context.Context, id uuid.UUID) (E, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *LedgerRepository[E]) Get(ctx context.Context, id uuid.UUID) (E, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *LedgerRepository[E]) get(db *gorm.DB, id uuid.UUID) (E, error) {
	var zero E
	entry := r.newEntry()
	if err := db.Where("id = ?", id).Take(entry).Error; err != nil {
		return zero, translateError(err)
	}
	return entry, nil
}

// Save persists the delivery state columns. Payload and identity are immutable after insert.
func (r *LedgerRepository[E]) Save(ctx context.Context, entry E) error {
	state := entry.State()
	updates := map[string]interface{}{
		"status":            state.Status,
		"attempts":          state.Attempts,
		"last_error":        state.LastError,
		"resolved_manually": state.ResolvedManually,
		"updated_at":        state.UpdatedAt,
	}
	result := r.db.WithContext(ctx).
		Model(r.newEntry()).
		Where("id = ?", entry.Ref().ID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *LedgerRepository[E]) List(ctx context.Context, filter ledger.ListFilter) ([]E, int64, error) {
	var entries []E
	var total int64

	query := r.db.WithContext(ctx).Model(r.newEntry())

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC, id ASC").Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	err := query.Find(&entries).Error

	return entries, total, err
}

func (r *LedgerRepository[E]) Tally(ctx context.Context) ([]ledger.NamespaceTally, error) {
	var rows []ledger.NamespaceTally
	err := r.db.WithContext(ctx).
		Model(r.newEntry()).
		Select(r.namespaceColumn + " AS namespace, status, COUNT(*) AS count").
		Group(r.namespaceColumn + ", status").
		Order(r.namespaceColumn + ", status").
		Scan(&rows).Error
	return rows, err
}

func (r *LedgerRepository[E]) SentBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(r.newEntry()).
		Where("status = ? AND resolved_manually = ? AND updated_at BETWEEN ? AND ?", model.StatusSent, false, from, to).
		Count(&count).Error
	return count, err
}

func dispatchableStatuses() pq.StringArray {
	statuses := model.DispatchableStatuses()
	out := make(pq.StringArray, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}
