package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailhub/hybridsync/pkg/ledger"
	"github.com/retailhub/hybridsync/pkg/model"
)

func TestList(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.enqueue(t, EventRequest{EventType: "sales.created"})
		f.clock.Advance(time.Second)
	}
	f.appendOutbox(t, "inventory.item", "sku-1", model.PriorityNormal, nil)
	_, err := f.engine.Dispatch(ctx, 1)
	require.NoError(t, err)

	all, err := f.engine.List(ctx, StatusQuery{})
	require.NoError(t, err)
	require.NotNil(t, all.Queue)
	require.NotNil(t, all.Outbox)
	assert.EqualValues(t, 3, all.Queue.Total)
	assert.EqualValues(t, 1, all.Outbox.Total)
	assert.Equal(t, DefaultListLimit, all.Limit)
	require.Len(t, all.Queue.Items, 3)
	assert.True(t, all.Queue.Items[0].CreatedAt.After(all.Queue.Items[2].CreatedAt))

	sent := model.StatusSent
	sentQueue, err := f.engine.List(ctx, StatusQuery{Ledger: "QUEUE", Status: &sent})
	require.NoError(t, err)
	assert.Nil(t, sentQueue.Outbox)
	require.NotNil(t, sentQueue.Queue)
	assert.EqualValues(t, 1, sentQueue.Queue.Total)

	pending := model.StatusPending
	pendingOutbox, err := f.engine.List(ctx, StatusQuery{Ledger: "outbox", Status: &pending})
	require.NoError(t, err)
	assert.Nil(t, pendingOutbox.Queue)
	assert.EqualValues(t, 1, pendingOutbox.Outbox.Total)

	page, err := f.engine.List(ctx, StatusQuery{Ledger: "queue", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Nil(t, page.Outbox)
	assert.EqualValues(t, 3, page.Queue.Total)
	assert.Len(t, page.Queue.Items, 1)

	clamped, err := f.engine.List(ctx, StatusQuery{Limit: MaxListLimit + 1, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, clamped.Limit)
	assert.Zero(t, clamped.Offset)

	failed := model.StatusFailed
	empty, err := f.engine.List(ctx, StatusQuery{Ledger: "outbox", Status: &failed})
	require.NoError(t, err)
	assert.NotNil(t, empty.Outbox.Items)
	assert.Empty(t, empty.Outbox.Items)
}

func TestListRejectsUnknownLedger(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{})

	_, err := f.engine.List(context.Background(), StatusQuery{Ledger: "archive"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "ledger", verr.Field)
}

func TestAttemptsUnknownEntry(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{})

	_, err := f.engine.Attempts(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
