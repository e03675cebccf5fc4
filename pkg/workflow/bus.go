package workflow

import (
	"log/slog"
	"sync"
	"time"
)

// subscriberBuffer bounds each subscriber channel. A slow consumer loses
// events rather than stalling the state machine.
const subscriberBuffer = 64

type subscriber struct {
	sessionID string
	ch        chan Event
}

// Bus is the in-process pub/sub fabric between running sessions and their
// SSE streams. Publish never blocks.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	log  *slog.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*subscriber]struct{}),
		log:  slog.With("component", "workflow.bus"),
	}
}

// Subscribe registers interest in one session's events. An empty sessionID
// subscribes to all sessions. The returned cancel func must be called to
// release the subscription; after cancel the channel is closed.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	sub := &subscriber{sessionID: sessionID, ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish fans an event out to matching subscribers. Events to a full
// subscriber buffer are dropped with a warning.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.sessionID != "" && sub.sessionID != ev.SessionID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.log.Warn("dropping event for slow subscriber",
				"session_id", ev.SessionID, "event_type", ev.Type)
		}
	}
}

// SubscriberCount reports active subscriptions, used by health reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
