// Package ledger defines the storage contract shared by the event queue and the entity outbox.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/retailhub/hybridsync/pkg/model"
)

var (
	ErrNotFound = errors.New("entry not found")
	// ErrNotClaimable is returned by Claim when the row is locked by another dispatcher or is no
	// longer PENDING/FAILED.
	ErrNotClaimable = errors.New("entry not claimable")
	ErrDuplicate    = errors.New("entry already exists")
)

// Ledger is one delivery ledger. Both ledgers share the same status machine, so the dispatcher,
// aggregator and forecast are written once against this interface.
type Ledger[E model.Entry] interface {
	Kind() model.LedgerKind

	// Insert stores a new entry. When the entry carries a dedup key that already exists, the
	// stored row is returned unchanged with created=false.
	Insert(ctx context.Context, entry E) (stored E, created bool, err error)

	// Eligible returns up to limit PENDING/FAILED entries, highest priority first, then oldest.
	Eligible(ctx context.Context, limit int) ([]E, error)

	// Claim locks an eligible entry for the rest of the enclosing transaction without waiting.
	Claim(ctx context.Context, id uuid.UUID) (E, error)

	// GetForUpdate locks an entry regardless of status, waiting for concurrent holders.
	GetForUpdate(ctx context.Context, id uuid.UUID) (E, error)

	Get(ctx context.Context, id uuid.UUID) (E, error)
	Save(ctx context.Context, entry E) error
	List(ctx context.Context, filter ListFilter) ([]E, int64, error)

	// Tally counts entries per namespace and status.
	Tally(ctx context.Context) ([]NamespaceTally, error)

	// SentBetween counts entries delivered by the transport with updated_at in [from, to].
	// Manually resolved entries are excluded.
	SentBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// AttemptLog is the append-only delivery history.
type AttemptLog interface {
	Append(ctx context.Context, attempt *model.Attempt) error
	// Window counts transport attempts with attempted_at in [from, to].
	Window(ctx context.Context, from, to time.Time) (AttemptStats, error)
	ForEntry(ctx context.Context, ref model.EntryRef) ([]model.Attempt, error)
}

type Repositories interface {
	Queue() Ledger[*model.QueueEntry]
	Outbox() Ledger[*model.OutboxEntry]
	Attempts() AttemptLog
}

// Tx is a unit of work. Everything done through it commits or rolls back together.
type Tx interface {
	Repositories
}

type Store interface {
	Repositories
	// Transaction runs fn in a unit of work. A non-nil error from fn rolls back.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type ListFilter struct {
	Status *model.SyncStatus
	Limit  int
	Offset int
}

type NamespaceTally struct {
	Namespace string
	Status    model.SyncStatus
	Count     int64
}

type AttemptStats struct {
	Total      int64
	Successful int64
}
