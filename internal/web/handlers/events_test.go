package handlers

import (
	"testing"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/tracking"
)

func TestEventBroadcaster_PublishBySession(t *testing.T) {
	b := NewEventBroadcaster()
	s1 := b.AddListener("s1")
	s2 := b.AddListener("s2")

	b.Publish(tracking.PresenceEvent{Type: tracking.EventEntered, SessionID: "s1", StudentID: "alice"})

	select {
	case ev := <-s1:
		if ev.StudentID != "alice" {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("s1 listener got nothing")
	}
	select {
	case ev := <-s2:
		t.Errorf("s2 listener got %+v", ev)
	default:
	}
}

func TestEventBroadcaster_FullBufferDoesNotBlock(t *testing.T) {
	b := NewEventBroadcaster()
	ch := b.AddListener("s1")
	for range constants.EventChannelBuffer + 10 {
		b.Publish(tracking.PresenceEvent{Type: tracking.EventEntered, SessionID: "s1"})
	}
	if len(ch) != constants.EventChannelBuffer {
		t.Errorf("expected full buffer, got %d", len(ch))
	}
}

func TestEventBroadcaster_RemoveListener(t *testing.T) {
	b := NewEventBroadcaster()
	ch := b.AddListener("s1")
	other := b.AddListener("s1")

	b.RemoveListener("s1", ch)
	if _, ok := <-ch; ok {
		t.Error("removed channel should be closed")
	}
	if n := b.ListenerCount("s1"); n != 1 {
		t.Errorf("expected 1 listener, got %d", n)
	}

	b.RemoveListener("s1", other)
	if n := b.ListenerCount("s1"); n != 0 {
		t.Errorf("expected no listeners, got %d", n)
	}
}

func TestTrackerNotifiesBroadcaster(t *testing.T) {
	store := setupMockStore(t)
	b := NewEventBroadcaster()
	tr, _ := newTestTracker(store, b)
	ch := b.AddListener("s1")

	if err := tr.StartSession(t.Context(), "s1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := tr.ObserveMatch(t.Context(), tracking.Observation{SessionID: "s1", StudentID: "bob", Confidence: 0.8}); err != nil {
		t.Fatalf("ObserveMatch: %v", err)
	}

	var types []tracking.PresenceEventType
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	if len(types) != 2 || types[0] != tracking.EventSessionStarted || types[1] != tracking.EventEntered {
		t.Errorf("unexpected events: %v", types)
	}
}
