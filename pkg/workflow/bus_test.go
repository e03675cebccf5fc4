package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSessionSubscriber(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("s1")
	defer cancel()

	bus.Publish(Event{SessionID: "s1", Type: EventStageStarted})

	select {
	case ev := <-ch:
		assert.Equal(t, EventStageStarted, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusFiltersOtherSessions(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("s1")
	defer cancel()

	bus.Publish(Event{SessionID: "other", Type: EventStageStarted})
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusWildcardSubscriberSeesAllSessions(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("")
	defer cancel()

	bus.Publish(Event{SessionID: "a", Type: EventStageStarted})
	bus.Publish(Event{SessionID: "b", Type: EventCompleted})

	first := <-ch
	second := <-ch
	assert.Equal(t, "a", first.SessionID)
	assert.Equal(t, "b", second.SessionID)
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("s1")
	defer cancel()

	// Nobody drains; overflow past the buffer must be dropped, not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(Event{SessionID: "s1", Type: EventStageStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("s1")
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)
	assert.Zero(t, bus.SubscriberCount())
}
