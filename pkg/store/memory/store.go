// Package memory is an in-process ledger.Store. Writers are serialized; a transaction works on a
// copy of the data that replaces the live state only on commit, so readers see the last committed
// state and never wait on an open transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
)

type state struct {
	queue    map[uuid.UUID]*model.QueueEntry
	outbox   map[uuid.UUID]*model.OutboxEntry
	attempts []model.Attempt
}

func newState() *state {
	return &state{
		queue:  make(map[uuid.UUID]*model.QueueEntry),
		outbox: make(map[uuid.UUID]*model.OutboxEntry),
	}
}

func (s *state) clone() *state {
	out := &state{
		queue:    make(map[uuid.UUID]*model.QueueEntry, len(s.queue)),
		outbox:   make(map[uuid.UUID]*model.OutboxEntry, len(s.outbox)),
		attempts: make([]model.Attempt, len(s.attempts)),
	}
	for id, entry := range s.queue {
		out.queue[id] = cloneQueueEntry(entry)
	}
	for id, entry := range s.outbox {
		out.outbox[id] = cloneOutboxEntry(entry)
	}
	copy(out.attempts, s.attempts)
	return out
}

// accessor runs fn against a state snapshot, taking whatever lock the caller needs.
type accessor func(write bool, fn func(*state) error) error

type Store struct {
	writeMu sync.Mutex   // one writer at a time
	mu      sync.RWMutex // guards data
	data    *state
	repositories
}

var _ ledger.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{data: newState()}
	s.repositories = newRepositories(s.locked)
	return s
}

func (s *Store) locked(write bool, fn func(*state) error) error {
	if write {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.data)
}

// Transaction serializes with every other writer. Inside fn, writes must go through the Tx
// repositories; a write through the Store itself would deadlock.
func (s *Store) Transaction(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	tx := newRepositories(func(_ bool, f func(*state) error) error {
		return f(work)
	})
	if err := fn(&tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	return nil
}

type repositories struct {
	queue    *table[*model.QueueEntry]
	outbox   *table[*model.OutboxEntry]
	attempts *attemptLog
}

func newRepositories(access accessor) repositories {
	return repositories{
		queue: &table[*model.QueueEntry]{
			kind:   model.LedgerQueue,
			access: access,
			rows:   func(s *state) map[uuid.UUID]*model.QueueEntry { return s.queue },
			clone:  cloneQueueEntry,
		},
		outbox: &table[*model.OutboxEntry]{
			kind:   model.LedgerOutbox,
			access: access,
			rows:   func(s *state) map[uuid.UUID]*model.OutboxEntry { return s.outbox },
			clone:  cloneOutboxEntry,
		},
		attempts: &attemptLog{access: access},
	}
}

func (r *repositories) Queue() ledger.Ledger[*model.QueueEntry] {
	return r.queue
}

func (r *repositories) Outbox() ledger.Ledger[*model.OutboxEntry] {
	return r.outbox
}

func (r *repositories) Attempts() ledger.AttemptLog {
	return r.attempts
}

type table[E model.Entry] struct {
	kind   model.LedgerKind
	access accessor
	rows   func(*state) map[uuid.UUID]E
	clone  func(E) E
}

func (t *table[E]) Kind() model.LedgerKind {
	return t.kind
}

func (t *table[E]) Insert(_ context.Context, entry E) (E, bool, error) {
	var stored E
	created := false
	err := t.access(true, func(s *state) error {
		rows := t.rows(s)
		if key := entry.DedupKey(); key != nil {
			for _, existing := range rows {
				if other := existing.DedupKey(); other != nil && *other == *key {
					stored = t.clone(existing)
					return nil
				}
			}
		}
		id := entry.Ref().ID
		if _, exists := rows[id]; exists {
			return ledger.ErrDuplicate
		}
		rows[id] = t.clone(entry)
		stored = entry
		created = true
		return nil
	})
	return stored, created, err
}

func (t *table[E]) Eligible(_ context.Context, limit int) ([]E, error) {
	var out []E
	err := t.access(false, func(s *state) error {
		for _, entry := range t.rows(s) {
			if entry.State().Status.Dispatchable() {
				out = append(out, t.clone(entry))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return dispatchOrder(out[i], out[j])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *table[E]) Claim(_ context.Context, id uuid.UUID) (E, error) {
	var claimed E
	err := t.access(true, func(s *state) error {
		entry, ok := t.rows(s)[id]
		if !ok || !entry.State().Status.Dispatchable() {
			return ledger.ErrNotClaimable
		}
		claimed = t.clone(entry)
		return nil
	})
	return claimed, err
}

func (t *table[E]) GetForUpdate(ctx context.Context, id uuid.UUID) (E, error) {
	return t.get(true, id)
}

func (t *table[E]) Get(_ context.Context, id uuid.UUID) (E, error) {
	return t.get(false, id)
}

func (t *table[E]) get(write bool, id uuid.UUID) (E, error) {
	var found E
	err := t.access(write, func(s *state) error {
		entry, ok := t.rows(s)[id]
		if !ok {
			return ledger.ErrNotFound
		}
		found = t.clone(entry)
		return nil
	})
	return found, err
}

func (t *table[E]) Save(_ context.Context, entry E) error {
	return t.access(true, func(s *state) error {
		rows := t.rows(s)
		id := entry.Ref().ID
		if _, ok := rows[id]; !ok {
			return ledger.ErrNotFound
		}
		rows[id] = t.clone(entry)
		return nil
	})
}

func (t *table[E]) List(_ context.Context, filter ledger.ListFilter) ([]E, int64, error) {
	var matched []E
	err := t.access(false, func(s *state) error {
		for _, entry := range t.rows(s) {
			if filter.Status != nil && entry.State().Status != *filter.Status {
				continue
			}
			matched = append(matched, t.clone(entry))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].State(), matched[j].State()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return matched[i].Ref().ID.String() < matched[j].Ref().ID.String()
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []E{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (t *table[E]) Tally(_ context.Context) ([]ledger.NamespaceTally, error) {
	type key struct {
		namespace string
		status    model.SyncStatus
	}
	counts := make(map[key]int64)
	err := t.access(false, func(s *state) error {
		for _, entry := range t.rows(s) {
			counts[key{entry.Namespace(), entry.State().Status}]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]ledger.NamespaceTally, 0, len(counts))
	for k, count := range counts {
		out = append(out, ledger.NamespaceTally{Namespace: k.namespace, Status: k.status, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func (t *table[E]) SentBetween(_ context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := t.access(false, func(s *state) error {
		for _, entry := range t.rows(s) {
			st := entry.State()
			if st.Status != model.StatusSent || st.ResolvedManually {
				continue
			}
			if within(st.UpdatedAt, from, to) {
				count++
			}
		}
		return nil
	})
	return count, err
}

type attemptLog struct {
	access accessor
}

func (l *attemptLog) Append(_ context.Context, attempt *model.Attempt) error {
	return l.access(true, func(s *state) error {
		row := *attempt
		row.Error = copyString(attempt.Error)
		s.attempts = append(s.attempts, row)
		return nil
	})
}

func (l *attemptLog) Window(_ context.Context, from, to time.Time) (ledger.AttemptStats, error) {
	var stats ledger.AttemptStats
	err := l.access(false, func(s *state) error {
		for _, attempt := range s.attempts {
			if attempt.Source != model.SourceTransport || !within(attempt.AttemptedAt, from, to) {
				continue
			}
			stats.Total++
			if attempt.Success {
				stats.Successful++
			}
		}
		return nil
	})
	return stats, err
}

func (l *attemptLog) ForEntry(_ context.Context, ref model.EntryRef) ([]model.Attempt, error) {
	out := []model.Attempt{}
	err := l.access(false, func(s *state) error {
		for _, attempt := range s.attempts {
			if attempt.Ledger == ref.Ledger && attempt.EntryID == ref.ID {
				out = append(out, attempt)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttemptedAt.Before(out[j].AttemptedAt)
	})
	return out, err
}

func dispatchOrder(a, b model.Entry) bool {
	if ra, rb := a.Rank().Rank(), b.Rank().Rank(); ra != rb {
		return ra > rb
	}
	sa, sb := a.State(), b.State()
	if !sa.CreatedAt.Equal(sb.CreatedAt) {
		return sa.CreatedAt.Before(sb.CreatedAt)
	}
	return a.Ref().ID.String() < b.Ref().ID.String()
}

func within(at, from, to time.Time) bool {
	return !at.Before(from) && !at.After(to)
}

func cloneQueueEntry(e *model.QueueEntry) *model.QueueEntry {
	c := *e
	c.Payload = e.Payload.Clone()
	c.IdempotencyKey = copyString(e.IdempotencyKey)
	c.LastError = copyString(e.LastError)
	return &c
}

func cloneOutboxEntry(e *model.OutboxEntry) *model.OutboxEntry {
	c := *e
	c.Payload = e.Payload.Clone()
	c.LastError = copyString(e.LastError)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
