package tracking

import "time"

// EventOutcome is the result of a single observation.
type EventOutcome string

const (
	// Entered means the student was absent and an entry was recorded.
	Entered EventOutcome = "entered"
	// Heartbeat means the student was already present; only last_seen moved.
	Heartbeat EventOutcome = "heartbeat"
	// Stale means the observation is not newer than the student's last
	// recorded exit and was ignored.
	Stale EventOutcome = "stale"
)

// PresenceEventType classifies events published to a Notifier.
type PresenceEventType string

const (
	EventEntered        PresenceEventType = "entered"
	EventExited         PresenceEventType = "exited"
	EventSessionStarted PresenceEventType = "session_started"
	EventSessionStopped PresenceEventType = "session_stopped"
)

// PresenceEvent is a live change in who is in the room.
type PresenceEvent struct {
	Type       PresenceEventType `json:"type"`
	SessionID  string            `json:"session_id"`
	StudentID  string            `json:"student_id,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Notifier receives presence events. Publish must not block.
type Notifier interface {
	Publish(event PresenceEvent)
}

// Observation is one recognition of a student in a session.
type Observation struct {
	SessionID  string
	StudentID  string
	Confidence float64
	ObservedAt time.Time // zero means now
}

// PresenceEntry is one present student in a live snapshot.
type PresenceEntry struct {
	StudentID string    `json:"student_id"`
	LastSeen  time.Time `json:"last_seen"`
}

// Clock provides the current time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
