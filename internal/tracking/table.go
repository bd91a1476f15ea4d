package tracking

import (
	"sort"
	"sync"
	"time"
)

// slot is the tracking state of one student in one session.
// Lock order: a goroutine holding slot.mu may take Table.mu, never the reverse.
type slot struct {
	mu       sync.Mutex
	present  bool
	lastSeen time.Time
	evicted  bool // removed from the table; holders must retry with a fresh slot
}

// Table is the live tracking table of one session.
type Table struct {
	sessionID string

	// state is read-locked by observations and sweeps and write-locked by the
	// stop flush, so a flush never interleaves with an arrival.
	state   sync.RWMutex
	closing bool // guarded by state
	stopped bool // guarded by state

	mu       sync.Mutex
	slots    map[string]*slot
	lastExit map[string]time.Time
}

func newTable(sessionID string) *Table {
	return &Table{
		sessionID: sessionID,
		slots:     make(map[string]*slot),
		lastExit:  make(map[string]time.Time),
	}
}

// acquire returns the locked slot of a student, creating it when missing.
func (t *Table) acquire(studentID string) *slot {
	for {
		t.mu.Lock()
		s, ok := t.slots[studentID]
		if !ok {
			s = &slot{}
			t.slots[studentID] = s
		}
		t.mu.Unlock()

		s.mu.Lock()
		if !s.evicted {
			return s
		}
		s.mu.Unlock()
	}
}

// evict removes a locked slot from the table.
func (t *Table) evict(studentID string, s *slot) {
	s.present = false
	s.evicted = true
	t.mu.Lock()
	if t.slots[studentID] == s {
		delete(t.slots, studentID)
	}
	t.mu.Unlock()
}

// exited evicts a locked slot whose exit at the given time is in the ledger.
func (t *Table) exited(studentID string, s *slot, at time.Time) {
	t.evict(studentID, s)
	t.mu.Lock()
	t.lastExit[studentID] = at
	t.mu.Unlock()
}

// lastExitOf returns the time of the student's latest exit in this table.
func (t *Table) lastExitOf(studentID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.lastExit[studentID]
	return at, ok
}

type slotRef struct {
	studentID string
	slot      *slot
}

// snapshot returns the current slots ordered by student id.
func (t *Table) snapshot() []slotRef {
	t.mu.Lock()
	refs := make([]slotRef, 0, len(t.slots))
	for id, s := range t.slots {
		refs = append(refs, slotRef{studentID: id, slot: s})
	}
	t.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].studentID < refs[j].studentID })
	return refs
}

// present lists the present students with their last_seen.
func (t *Table) present() []PresenceEntry {
	var out []PresenceEntry
	for _, ref := range t.snapshot() {
		ref.slot.mu.Lock()
		if ref.slot.present && !ref.slot.evicted {
			out = append(out, PresenceEntry{StudentID: ref.studentID, LastSeen: ref.slot.lastSeen})
		}
		ref.slot.mu.Unlock()
	}
	return out
}

// restore marks a student present without a ledger write. Used by recovery
// before the table is published.
func (t *Table) restore(studentID string, lastSeen time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[studentID] = &slot{present: true, lastSeen: lastSeen}
}
