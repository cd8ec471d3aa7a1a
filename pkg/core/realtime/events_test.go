package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("search.started"), EventSearchStarted)
	assert.Equal(t, EventType("best.improved"), EventBestImproved)
	assert.Equal(t, EventType("backpressure.triggered"), EventBackpressure)
	assert.Len(t, AllEventTypes, 7)
}

func TestNewSearchEvent(t *testing.T) {
	payload := &BestImprovedPayload{Makespan: 9}
	event := NewSearchEvent(EventBestImproved, "run-1", payload)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventBestImproved, event.Type)
	assert.Equal(t, "run-1", event.RunID)
	assert.NotZero(t, event.Timestamp)
	assert.Equal(t, payload, event.Payload)
	assert.NotNil(t, event.Metadata)
}

func TestSearchEvent_WithMetadata(t *testing.T) {
	event := NewSearchEvent(EventSearchStarted, "run-1", nil)
	event.WithMetadata("graph", "sample").WithMetadata("processors", "2")

	assert.Equal(t, "sample", event.Metadata["graph"])
	assert.Equal(t, "2", event.Metadata["processors"])
}

func TestSearchEvent_JSON_Serialization(t *testing.T) {
	event := NewSearchEvent(EventSearchFinished, "run-1", &SearchFinishedPayload{Makespan: 9, Expanded: 42})
	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded SearchEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, "run-1", decoded.RunID)

	payload, ok := decoded.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(9), payload["makespan"])
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(false, false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, EventBestImproved)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(NewSearchEvent(EventSearchStarted, "run-1", nil)))
	require.NoError(t, bus.Publish(NewSearchEvent(EventBestImproved, "run-1", &BestImprovedPayload{Makespan: 9})))

	select {
	case e := <-events:
		assert.Equal(t, EventBestImproved, e.Type)
		assert.Equal(t, "run-1", e.RunID)
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
	}
	assert.Equal(t, int64(2), bus.Published())
}

func TestEventBus_ChannelClosesWithContext(t *testing.T) {
	bus := NewEventBus(false, false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("通道未关闭")
	}
}

func TestEventBus_PublishAfterClose(t *testing.T) {
	bus := NewEventBus(false, false)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(NewSearchEvent(EventSearchStarted, "run-1", nil)))
}

func TestEventBus_PreservesOrderAcrossTypes(t *testing.T) {
	bus := NewEventBus(false, false)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, EventSearchStarted, EventBestImproved, EventSearchFinished)
	require.NoError(t, err)

	var want []EventType
	for round := 0; round < 20; round++ {
		for _, typ := range []EventType{EventSearchStarted, EventTierDispatched, EventBestImproved, EventSearchFinished} {
			require.NoError(t, bus.Publish(NewSearchEvent(typ, "run-1", nil)))
			if typ != EventTierDispatched {
				want = append(want, typ)
			}
		}
	}

	got := make([]EventType, 0, len(want))
	for len(got) < len(want) {
		select {
		case e := <-events:
			got = append(got, e.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("等待事件超时，已收到 %d/%d", len(got), len(want))
		}
	}
	assert.Equal(t, want, got)
}
