package subscriber

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
)

type mockProgressCache struct {
	invalidated []uint
	err         error
}

func (m *mockProgressCache) Invalidate(ctx context.Context, instanceID uint) error {
	m.invalidated = append(m.invalidated, instanceID)
	return m.err
}

func TestProgressEventSubscriberInvalidates(t *testing.T) {
	bus := eventbus.NewChangeEventBus()
	cache := &mockProgressCache{}
	NewProgressEventSubscriber(cache).Register(bus)

	require.NoError(t, bus.Publish(context.Background(), eventbus.ChangeEvent{Type: eventbus.ChangeEventItem, InstanceID: 3}))
	require.NoError(t, bus.Publish(context.Background(), eventbus.ChangeEvent{Type: eventbus.ChangeEventInstance, InstanceID: 4}))
	require.NoError(t, bus.Publish(context.Background(), eventbus.ChangeEvent{Type: eventbus.ChangeEventTemplate}))

	assert.Equal(t, []uint{3, 4}, cache.invalidated)
}

func TestProgressEventSubscriberErrors(t *testing.T) {
	bus := eventbus.NewChangeEventBus()
	down := errors.New("redis down")
	cache := &mockProgressCache{err: down}
	NewProgressEventSubscriber(cache).Register(bus)

	err := bus.Publish(context.Background(), eventbus.ChangeEvent{Type: eventbus.ChangeEventItem, InstanceID: 3})
	assert.ErrorIs(t, err, down)
	err = bus.Publish(context.Background(), eventbus.ChangeEvent{Type: eventbus.ChangeEventItem})
	assert.Error(t, err)
	assert.Equal(t, []uint{3}, cache.invalidated)
}

func TestMetricsEventSubscriberCounts(t *testing.T) {
	bus := eventbus.NewChangeEventBus()
	m := metrics.New(prometheus.NewRegistry())
	NewMetricsEventSubscriber(m).Register(bus)

	for _, eventType := range []eventbus.ChangeEventType{eventbus.ChangeEventItem, eventbus.ChangeEventInstance, eventbus.ChangeEventTemplate} {
		require.NoError(t, bus.Publish(context.Background(), eventbus.ChangeEvent{Type: eventType, InstanceID: 1}))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChangeLogWrites))
}

func TestRegisterWithNilBus(t *testing.T) {
	NewProgressEventSubscriber(&mockProgressCache{}).Register(nil)
	NewMetricsEventSubscriber(nil).Register(eventbus.NewChangeEventBus())
}
