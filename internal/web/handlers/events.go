package handlers

import (
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

// EventBroadcaster fans presence events out to the listeners of each
// session. It implements tracking.Notifier.
type EventBroadcaster struct {
	listeners map[string][]chan tracking.PresenceEvent
	mu        sync.RWMutex
}

var _ tracking.Notifier = (*EventBroadcaster)(nil)

// NewEventBroadcaster creates a broadcaster with no listeners.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{listeners: make(map[string][]chan tracking.PresenceEvent)}
}

// AddListener subscribes to the events of one session.
func (b *EventBroadcaster) AddListener(sessionID string) chan tracking.PresenceEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan tracking.PresenceEvent, constants.EventChannelBuffer)
	b.listeners[sessionID] = append(b.listeners[sessionID], ch)
	return ch
}

// RemoveListener unsubscribes and closes ch.
func (b *EventBroadcaster) RemoveListener(sessionID string, ch chan tracking.PresenceEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	listeners := b.listeners[sessionID]
	for i, listener := range listeners {
		if listener == ch {
			b.listeners[sessionID] = append(listeners[:i], listeners[i+1:]...)
			if len(b.listeners[sessionID]) == 0 {
				delete(b.listeners, sessionID)
			}
			close(ch)
			return
		}
	}
}

// ListenerCount returns the number of listeners of a session.
func (b *EventBroadcaster) ListenerCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[sessionID])
}

// Publish sends ev to the session's listeners without blocking.
func (b *EventBroadcaster) Publish(ev tracking.PresenceEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners[ev.SessionID] {
		select {
		case listener <- ev:
		default:
			// Listener buffer full, skip.
		}
	}
}
