package bootstrap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retailhub/hybridsync/pkg/config"
	"github.com/retailhub/hybridsync/pkg/transport"
)

func TestNewTransport(t *testing.T) {
	cfg := &config.Config{}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "hybridsync.events"

	t.Run("kafka behind breaker", func(t *testing.T) {
		cfg.Sync.Transport = "kafka"
		cfg.Sync.Breaker.Enabled = true
		tr, closeFn, err := NewTransport(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &transport.Breaker{}, tr)
		assert.NoError(t, closeFn())
	})

	t.Run("kafka without breaker", func(t *testing.T) {
		cfg.Sync.Transport = "kafka"
		cfg.Sync.Breaker.Enabled = false
		tr, closeFn, err := NewTransport(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &transport.KafkaTransport{}, tr)
		assert.NoError(t, closeFn())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg.Sync.Transport = "carrier-pigeon"
		_, _, err := NewTransport(cfg, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestRuntimeCloseOrder(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	rt := &Runtime{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	}}

	err := rt.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{2, 1}, order)
}
