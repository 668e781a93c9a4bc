package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)
	ctx := context.Background()

	var received int32
	_, err := bus.Subscribe(ctx, Filter{Types: []string{EventChunkReady}},
		func(_ context.Context, ev *Envelope) {
			atomic.AddInt32(&received, 1)
		})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewChunkEnvelope(EventChunkReady, ChunkEvent{X: 1, Y: 2, Items: 5})))
	require.NoError(t, bus.Publish(ctx, NewChunkEnvelope(EventChunkUnloaded, ChunkEvent{X: 1, Y: 2})))

	// Доставка асинхронная
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, time.Second, 10*time.Millisecond, "фильтр должен пропустить только chunk.ready")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(16)
	ctx := context.Background()

	var received int32
	sub, err := bus.Subscribe(ctx, Filter{}, func(_ context.Context, _ *Envelope) {
		atomic.AddInt32(&received, 1)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewChunkEnvelope(EventChunkReady, ChunkEvent{})))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, time.Second, 10*time.Millisecond)

	sub.Unsubscribe()
	require.NoError(t, bus.Publish(ctx, NewChunkEnvelope(EventChunkReady, ChunkEvent{})))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&received), "после отписки доставка должна прекратиться")
}

func TestChunkEnvelopeRoundTrip(t *testing.T) {
	ev := NewChunkEnvelope(EventChunkReady, ChunkEvent{X: -3, Y: 7, Items: 12, Failures: 1, Elapsed: 4.5})

	assert.Equal(t, "stream", ev.Source)
	assert.Equal(t, EventChunkReady, ev.EventType)
	assert.NotEmpty(t, ev.ID)

	ce, err := DecodeChunkEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, -3, ce.X)
	assert.Equal(t, 7, ce.Y)
	assert.Equal(t, 12, ce.Items)
	assert.Equal(t, 1, ce.Failures)
	assert.Equal(t, 4.5, ce.Elapsed)
}

func TestMetricsCountPublished(t *testing.T) {
	bus := NewMemoryBus(16)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, NewChunkEnvelope(EventChunkReady, ChunkEvent{X: i})))
	}

	assert.Eventually(t, func() bool {
		return bus.Metrics().Published == 3
	}, time.Second, 10*time.Millisecond)
}
