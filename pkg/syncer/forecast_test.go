package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailhub/hybridsync/pkg/model"
)

func TestForecastEmpty(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{})

	forecast, err := f.engine.Forecast(context.Background(), 60)
	require.NoError(t, err)
	assert.Equal(t, 60, forecast.LookbackMinutes)
	assert.Zero(t, forecast.ProcessedRecent)
	assert.Zero(t, forecast.SuccessRate)
	assert.Zero(t, forecast.EventsPerMinute)
	assert.Nil(t, forecast.EstimatedMinutesRemaining)
	assert.Nil(t, forecast.EstimatedCompletion)
	assert.Equal(t, f.clock.Now(), forecast.GeneratedAt)
}

func TestForecastPartialFailure(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{})
	ctx := context.Background()

	f.enqueue(t, EventRequest{EventType: "sales.created"})
	f.clock.Advance(time.Second)
	f.enqueue(t, EventRequest{EventType: "sales.created"})
	f.clock.Advance(time.Second)
	f.enqueue(t, EventRequest{EventType: "sales.created", Payload: model.JSONB{"fail": true}})
	f.clock.Advance(time.Second)
	last := f.enqueue(t, EventRequest{EventType: "sales.created"})

	summary, err := f.engine.Dispatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Processed: 3, Sent: 2, Failed: 1}, summary)

	f.clock.Advance(10 * time.Minute)
	forecast, err := f.engine.Forecast(ctx, 45)
	require.NoError(t, err)
	assert.EqualValues(t, 2, forecast.ProcessedRecent)
	assert.EqualValues(t, 3, forecast.AttemptsTotal)
	assert.EqualValues(t, 2, forecast.AttemptsSuccessful)
	assert.Equal(t, 66.67, forecast.SuccessRate)
	assert.EqualValues(t, 1, forecast.BacklogPending)
	assert.EqualValues(t, 1, forecast.BacklogFailed)
	assert.EqualValues(t, 2, forecast.BacklogTotal)
	assert.InDelta(t, 2.0/45.0, forecast.EventsPerMinute, 1e-9)
	require.NotNil(t, forecast.EstimatedMinutesRemaining)
	assert.InDelta(t, 45.0, *forecast.EstimatedMinutesRemaining, 1e-6)
	require.NotNil(t, forecast.EstimatedCompletion)
	assert.WithinDuration(t, f.clock.Now().Add(45*time.Minute), *forecast.EstimatedCompletion, time.Second)

	// Manual resolution shrinks the backlog but is not throughput.
	_, err = f.engine.Resolve(ctx, last.Queued[0].ID)
	require.NoError(t, err)

	forecast, err = f.engine.Forecast(ctx, 45)
	require.NoError(t, err)
	assert.EqualValues(t, 2, forecast.ProcessedRecent)
	assert.EqualValues(t, 3, forecast.AttemptsTotal)
	assert.EqualValues(t, 1, forecast.BacklogTotal)

	// Outside the window nothing counts.
	f.clock.Advance(time.Hour)
	forecast, err = f.engine.Forecast(ctx, 45)
	require.NoError(t, err)
	assert.Zero(t, forecast.ProcessedRecent)
	assert.Zero(t, forecast.AttemptsTotal)
	assert.Nil(t, forecast.EstimatedMinutesRemaining)
}

func TestForecastZeroLookback(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{})
	ctx := context.Background()

	f.enqueue(t, EventRequest{EventType: "sales.created"}, EventRequest{EventType: "sales.created"})
	_, err := f.engine.Dispatch(ctx, 1)
	require.NoError(t, err)

	forecast, err := f.engine.Forecast(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, forecast.EventsPerMinute)
	assert.Nil(t, forecast.EstimatedMinutesRemaining)
	assert.Nil(t, forecast.EstimatedCompletion)
	assert.EqualValues(t, 1, forecast.BacklogTotal)
}

func TestForecastLookbackValidation(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{MaxLookbackMinutes: 120})

	for _, lookback := range []int{-1, 121} {
		_, err := f.engine.Forecast(context.Background(), lookback)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "lookback %d", lookback)
		assert.Equal(t, "lookback_minutes", verr.Field)
	}
}

func TestForecastBeyondDurationRange(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{MaxLookbackMinutes: 100_000_000})
	ctx := context.Background()

	f.enqueue(t,
		EventRequest{EventType: "sales.created"},
		EventRequest{EventType: "sales.created"},
		EventRequest{EventType: "sales.created"},
	)
	_, err := f.engine.Dispatch(ctx, 1)
	require.NoError(t, err)

	// One delivery in 1e8 minutes leaves 2e8 minutes for the remaining two.
	forecast, err := f.engine.Forecast(ctx, 100_000_000)
	require.NoError(t, err)
	require.NotNil(t, forecast.EstimatedMinutesRemaining)
	assert.InDelta(t, 2e8, *forecast.EstimatedMinutesRemaining, 1)
	assert.Nil(t, forecast.EstimatedCompletion)
}

func TestForecastLookbackCeilingFitsDuration(t *testing.T) {
	f := newFixture(t, &stubTransport{}, Options{MaxLookbackMinutes: 1 << 40})

	_, err := f.engine.Forecast(context.Background(), 1<<40)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "lookback_minutes", verr.Field)
}
