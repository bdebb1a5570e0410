package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToSpecificAndGlobalListeners(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var specific, global []EventType

	done := make(chan struct{}, 2)
	bus.Subscribe(EventNodeStarted, func(e *Event) {
		mu.Lock()
		specific = append(specific, e.Type)
		mu.Unlock()
		done <- struct{}{}
	})
	bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		global = append(global, e.Type)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.Publish(&Event{Type: EventNodeStarted})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for listener delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []EventType{EventNodeStarted}, specific)
	require.Equal(t, []EventType{EventNodeStarted}, global)
}

func TestEventBusClearRemovesListeners(t *testing.T) {
	bus := NewEventBus()
	called := false
	bus.Subscribe(EventNodeFailed, func(e *Event) { called = true })
	bus.Clear()
	bus.Publish(&Event{Type: EventNodeFailed})
	time.Sleep(10 * time.Millisecond)
	require.False(t, called)
}
