package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/model"
	"github.com/retailhub/hybridsync/pkg/store/memory"
)

func TestViewsOnEmptyStore(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{})
	ctx := context.Background()

	totals, err := f.engine.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)

	hybrid, err := f.engine.Hybrid(ctx)
	require.NoError(t, err)
	assert.Equal(t, HybridTotals{}, hybrid)

	breakdown, err := f.engine.Breakdown(ctx)
	require.NoError(t, err)
	assert.Empty(t, breakdown)
}

func TestViewsAreAdditive(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{MaxAttempts: 1})
	ctx := context.Background()

	f.enqueue(t,
		EventRequest{EventType: "sales.created"},
		EventRequest{EventType: "sales.created", Payload: model.JSONB{"fail": true}},
		EventRequest{EventType: "inventory.adjusted"},
	)
	f.appendOutbox(t, "inventory.item", "sku-1", model.PriorityHigh, nil)
	f.appendOutbox(t, "customers.profile", "cust-1", model.PriorityNormal, model.JSONB{"fail": true})
	_, err := f.engine.Dispatch(ctx, 3)
	require.NoError(t, err)
	f.enqueue(t, EventRequest{EventType: "reports.daily"})

	totals, err := f.engine.Summary(ctx)
	require.NoError(t, err)
	hybrid, err := f.engine.Hybrid(ctx)
	require.NoError(t, err)
	breakdown, err := f.engine.Breakdown(ctx)
	require.NoError(t, err)

	assert.Equal(t, totals, hybrid.Totals)
	assert.EqualValues(t, 6, totals.Total)
	assert.EqualValues(t, 4, hybrid.Components.Queue.Total)
	assert.EqualValues(t, 2, hybrid.Components.Outbox.Total)
	assert.Equal(t, totals.Total, totals.Pending+totals.Processed+totals.Failed+totals.Dead)

	for _, get := range []func(Totals) int64{
		func(v Totals) int64 { return v.Total },
		func(v Totals) int64 { return v.Pending },
		func(v Totals) int64 { return v.Processed },
		func(v Totals) int64 { return v.Failed },
		func(v Totals) int64 { return v.Dead },
	} {
		assert.Equal(t, get(totals), get(hybrid.Components.Queue)+get(hybrid.Components.Outbox))
		var sum int64
		for _, module := range breakdown {
			sum += get(module.Totals)
		}
		assert.Equal(t, get(totals), sum)
	}

	modules := make([]string, 0, len(breakdown))
	for _, module := range breakdown {
		modules = append(modules, module.Module)
	}
	assert.Equal(t, []string{"customers", "inventory", "reports", "sales"}, modules)
}

func TestBreakdownFallsBackToGeneral(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(memory.NewStore(), &stubTransport{}, NewModuleMapper([]string{"sales"}, false), Options{}, zap.NewNop())

	_, err := engine.Enqueue(ctx, []EventRequest{
		{EventType: "sales.created"},
		{EventType: "legacy_import"},
		{EventType: "payroll.run"},
	})
	require.NoError(t, err)

	breakdown, err := engine.Breakdown(ctx)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, GeneralModule, breakdown[0].Module)
	assert.EqualValues(t, 2, breakdown[0].Queue.Pending)
	assert.Equal(t, "sales", breakdown[1].Module)
}

func TestPercentRounding(t *testing.T) {
	assert.Equal(t, 0.0, percentOf(0, 0))
	assert.Equal(t, 33.33, percentOf(1, 3))
	assert.Equal(t, 66.67, percentOf(2, 3))
	assert.Equal(t, 100.0, percentOf(5, 5))
}
