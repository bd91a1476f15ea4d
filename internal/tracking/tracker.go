// Package tracking keeps the live presence of students in running class
// sessions and turns recognitions and silences into ledger events.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
)

const (
	// DefaultExitTimeout is the silence after which a present student is marked out.
	DefaultExitTimeout = 60 * time.Second
	// DefaultMaxClockSkew bounds how far observed_at may be ahead of the clock.
	DefaultMaxClockSkew = 5 * time.Second
)

// Store is the persistence the tracker needs.
type Store interface {
	database.MovementLedger
	RecordArrival(ctx context.Context, ev database.MovementEvent) (bool, error)
	GetSession(ctx context.Context, id string) (*database.ClassSession, error)
	ListLiveSessions(ctx context.Context) ([]database.ClassSession, error)
	MarkSessionLive(ctx context.Context, id string, at time.Time) error
	MarkSessionStopped(ctx context.Context, id string, at time.Time) error
}

// Options configures a Tracker.
type Options struct {
	ExitTimeout  time.Duration
	MaxClockSkew time.Duration
	// Recover re-tracks students whose last ledger event is an entry when a
	// session is started or resumed.
	Recover  bool
	Clock    Clock
	Logger   *slog.Logger
	Notifier Notifier
}

// Tracker owns the tracking tables of all live sessions.
type Tracker struct {
	store       Store
	clock       Clock
	logger      *slog.Logger
	notifier    Notifier
	exitTimeout time.Duration
	maxSkew     time.Duration
	recover     bool

	startMu sync.Mutex // serializes StartSession
	mu      sync.RWMutex
	tables  map[string]*Table
}

// New creates a tracker with no live sessions.
func New(store Store, opts Options) *Tracker {
	if opts.ExitTimeout <= 0 {
		opts.ExitTimeout = DefaultExitTimeout
	}
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = DefaultMaxClockSkew
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Tracker{
		store:       store,
		clock:       opts.Clock,
		logger:      logging.OrDiscard(opts.Logger).With("component", "tracker"),
		notifier:    opts.Notifier,
		exitTimeout: opts.ExitTimeout,
		maxSkew:     opts.MaxClockSkew,
		recover:     opts.Recover,
		tables:      make(map[string]*Table),
	}
}

// ExitTimeout returns the configured silence threshold.
func (t *Tracker) ExitTimeout() time.Duration {
	return t.exitTimeout
}

func (t *Tracker) table(sessionID string) *Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tables[sessionID]
}

func (t *Tracker) publish(ev PresenceEvent) {
	if t.notifier != nil {
		t.notifier.Publish(ev)
	}
}

// ObserveMatch records that a student was recognized in a session. An
// absent student observed no later than their last exit is reported as
// Stale and nothing is written, which keeps the ledger ordered when frames
// arrive late.
func (t *Tracker) ObserveMatch(ctx context.Context, obs Observation) (EventOutcome, error) {
	if obs.SessionID == "" || obs.StudentID == "" {
		return "", ErrInvalidObservation
	}
	table := t.table(obs.SessionID)
	if table == nil {
		return "", ErrNoActiveSession
	}

	table.state.RLock()
	defer table.state.RUnlock()
	if table.closing {
		return "", ErrNoActiveSession
	}

	now := t.clock.Now()
	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	} else if observedAt.After(now.Add(t.maxSkew)) {
		return "", ErrFutureObservation
	}

	s := table.acquire(obs.StudentID)
	defer s.mu.Unlock()

	if s.present {
		if observedAt.After(s.lastSeen) {
			s.lastSeen = observedAt
		}
		return Heartbeat, nil
	}
	if exitAt, ok := table.lastExitOf(obs.StudentID); ok && !observedAt.After(exitAt) {
		table.evict(obs.StudentID, s)
		t.logger.Debug("stale observation ignored",
			"session_id", obs.SessionID,
			"student_id", obs.StudentID,
			"observed_at", observedAt,
			"last_exit", exitAt)
		return Stale, nil
	}

	ev := database.MovementEvent{
		StudentID: obs.StudentID,
		SessionID: obs.SessionID,
		Kind:      database.MovementEntry,
		Timestamp: observedAt,
	}
	created, err := t.store.RecordArrival(ctx, ev)
	if err != nil {
		table.evict(obs.StudentID, s)
		return "", fmt.Errorf("recording entry of %s: %w", obs.StudentID, err)
	}
	s.present = true
	s.lastSeen = observedAt

	t.logger.Debug("student entered",
		"session_id", obs.SessionID,
		"student_id", obs.StudentID,
		"confidence", obs.Confidence,
		"record_created", created)
	t.publish(PresenceEvent{
		Type:       EventEntered,
		SessionID:  obs.SessionID,
		StudentID:  obs.StudentID,
		Confidence: obs.Confidence,
		Timestamp:  observedAt,
	})
	return Entered, nil
}

// StartSession makes a session live. Starting a live session is a no-op.
func (t *Tracker) StartSession(ctx context.Context, sessionID string) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	if table := t.table(sessionID); table != nil {
		table.state.Lock()
		stopped := table.stopped
		if !stopped {
			// A stop that failed half way is resumed as live; the remaining
			// slots are still present.
			table.closing = false
		}
		table.state.Unlock()
		if !stopped {
			return nil
		}
	}

	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	now := t.clock.Now()
	table, err := t.buildTable(ctx, sessionID, now)
	if err != nil {
		return err
	}
	if err := t.store.MarkSessionLive(ctx, sessionID, now); err != nil {
		return fmt.Errorf("marking session %s live: %w", sessionID, err)
	}
	t.install(table)
	t.logger.Info("session started", "session_id", sessionID)
	t.publish(PresenceEvent{Type: EventSessionStarted, SessionID: sessionID, Timestamp: now})
	return nil
}

// ResumeLiveSessions restarts tracking for every session the store reports
// as live. It returns the ids of the resumed sessions.
func (t *Tracker) ResumeLiveSessions(ctx context.Context) ([]string, error) {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	sessions, err := t.store.ListLiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing live sessions: %w", err)
	}

	var resumed []string
	now := t.clock.Now()
	for i := range sessions {
		id := sessions[i].ID
		if t.table(id) != nil {
			continue
		}
		table, err := t.buildTable(ctx, id, now)
		if err != nil {
			return resumed, err
		}
		present := len(table.present())
		t.install(table)
		resumed = append(resumed, id)
		t.logger.Info("session resumed", "session_id", id, "present", present)
	}
	return resumed, nil
}

func (t *Tracker) install(table *Table) {
	t.mu.Lock()
	t.tables[table.sessionID] = table
	t.mu.Unlock()
}

// buildTable creates a table, replaying the ledger tail when recovery is on.
func (t *Tracker) buildTable(ctx context.Context, sessionID string, now time.Time) (*Table, error) {
	table := newTable(sessionID)
	if !t.recover {
		return table, nil
	}

	events, err := t.store.ListMovements(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replaying ledger of session %s: %w", sessionID, err)
	}
	last := make(map[string]database.MovementKind)
	for _, ev := range events {
		last[ev.StudentID] = ev.Kind
		if ev.Kind == database.MovementExit {
			table.lastExit[ev.StudentID] = ev.Timestamp
		}
	}
	for studentID, kind := range last {
		if kind == database.MovementEntry {
			table.restore(studentID, now)
		}
	}
	return table, nil
}

// StopSession flushes a live session: every present student gets an exit at
// their last_seen, then the session is persisted as stopped and dropped.
// On failure the session stays closed for observations and a retry resumes
// the flush.
func (t *Tracker) StopSession(ctx context.Context, sessionID string) error {
	table := t.table(sessionID)
	if table == nil {
		return ErrNoActiveSession
	}

	table.state.Lock()
	defer table.state.Unlock()
	if table.stopped {
		return ErrNoActiveSession
	}
	table.closing = true

	for _, ref := range table.snapshot() {
		s := ref.slot
		s.mu.Lock()
		if s.present && !s.evicted {
			ev := database.MovementEvent{
				StudentID: ref.studentID,
				SessionID: sessionID,
				Kind:      database.MovementExit,
				Timestamp: s.lastSeen,
			}
			if err := t.store.AppendMovement(ctx, ev); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("flushing exit of %s: %w", ref.studentID, err)
			}
			t.publish(PresenceEvent{Type: EventExited, SessionID: sessionID, StudentID: ref.studentID, Timestamp: ev.Timestamp})
		}
		table.evict(ref.studentID, s)
		s.mu.Unlock()
	}

	now := t.clock.Now()
	if err := t.store.MarkSessionStopped(ctx, sessionID, now); err != nil {
		return fmt.Errorf("marking session %s stopped: %w", sessionID, err)
	}
	table.stopped = true

	t.mu.Lock()
	if t.tables[sessionID] == table {
		delete(t.tables, sessionID)
	}
	t.mu.Unlock()

	t.logger.Info("session stopped", "session_id", sessionID)
	t.publish(PresenceEvent{Type: EventSessionStopped, SessionID: sessionID, Timestamp: now})
	return nil
}

// ActiveSessions returns the ids of sessions accepting observations.
func (t *Tracker) ActiveSessions() []string {
	tables := t.allTables()
	ids := make([]string, 0, len(tables))
	for _, table := range tables {
		table.state.RLock()
		if !table.closing {
			ids = append(ids, table.sessionID)
		}
		table.state.RUnlock()
	}
	sort.Strings(ids)
	return ids
}

// IsActive reports whether the session accepts observations.
func (t *Tracker) IsActive(sessionID string) bool {
	table := t.table(sessionID)
	if table == nil {
		return false
	}
	table.state.RLock()
	defer table.state.RUnlock()
	return !table.closing
}

// Tracked reports whether the session has a table, including one whose
// stop flush failed and is waiting for a retry.
func (t *Tracker) Tracked(sessionID string) bool {
	return t.table(sessionID) != nil
}

// TrackedSessions returns the ids of every session with a table.
func (t *Tracker) TrackedSessions() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.tables))
	for id := range t.tables {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (t *Tracker) allTables() []*Table {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tables := make([]*Table, 0, len(t.tables))
	for _, table := range t.tables {
		tables = append(tables, table)
	}
	return tables
}

// PresentIn returns the sessions in which the student is currently present.
func (t *Tracker) PresentIn(studentID string) []string {
	var ids []string
	for _, table := range t.allTables() {
		table.mu.Lock()
		s, ok := table.slots[studentID]
		table.mu.Unlock()
		if !ok {
			continue
		}
		s.mu.Lock()
		if s.present && !s.evicted {
			ids = append(ids, table.sessionID)
		}
		s.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// ForgetStudent drops a removed student from every table without writing to
// the ledger. It returns the number of slots dropped.
func (t *Tracker) ForgetStudent(studentID string) int {
	dropped := 0
	for _, table := range t.allTables() {
		table.state.RLock()
		table.mu.Lock()
		s, ok := table.slots[studentID]
		delete(table.lastExit, studentID)
		table.mu.Unlock()
		if ok {
			s.mu.Lock()
			if !s.evicted {
				table.evict(studentID, s)
				dropped++
			}
			s.mu.Unlock()
		}
		table.state.RUnlock()
	}
	if dropped > 0 {
		t.logger.Info("student dropped from live sessions", "student_id", studentID, "slots", dropped)
	}
	return dropped
}

// Snapshot lists the students currently present in a live session.
func (t *Tracker) Snapshot(sessionID string) ([]PresenceEntry, error) {
	table := t.table(sessionID)
	if table == nil {
		return nil, ErrNoActiveSession
	}
	table.state.RLock()
	defer table.state.RUnlock()
	if table.closing {
		return nil, ErrNoActiveSession
	}
	return table.present(), nil
}

// sweep emits exits for every student silent longer than the exit timeout.
// It returns the number of exits written.
func (t *Tracker) sweep(ctx context.Context) int {
	exits := 0
	for _, table := range t.allTables() {
		exits += t.sweepTable(ctx, table)
	}
	return exits
}

func (t *Tracker) sweepTable(ctx context.Context, table *Table) int {
	table.state.RLock()
	defer table.state.RUnlock()
	if table.closing {
		return 0
	}

	exits := 0
	for _, ref := range table.snapshot() {
		s := ref.slot
		s.mu.Lock()
		if !s.present || s.evicted || t.clock.Now().Sub(s.lastSeen) <= t.exitTimeout {
			s.mu.Unlock()
			continue
		}
		ev := database.MovementEvent{
			StudentID: ref.studentID,
			SessionID: table.sessionID,
			Kind:      database.MovementExit,
			Timestamp: s.lastSeen,
		}
		if err := t.store.AppendMovement(ctx, ev); err != nil {
			s.mu.Unlock()
			t.logger.Error("failed to record exit",
				"session_id", table.sessionID,
				"student_id", ref.studentID,
				"error", err)
			continue
		}
		table.exited(ref.studentID, s, ev.Timestamp)
		s.mu.Unlock()
		exits++

		t.logger.Debug("student exited", "session_id", table.sessionID, "student_id", ref.studentID, "last_seen", ev.Timestamp)
		t.publish(PresenceEvent{Type: EventExited, SessionID: table.sessionID, StudentID: ref.studentID, Timestamp: ev.Timestamp})
	}
	return exits
}
