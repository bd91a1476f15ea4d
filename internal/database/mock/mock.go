// Package mock provides an in-memory implementation of database.Store for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

type recordKey struct {
	sessionID string
	studentID string
}

// MockStore is an in-memory database.Store
type MockStore struct {
	mu         sync.RWMutex
	sessions   map[string]*database.ClassSession
	students   map[string]*database.Student
	encodings  []database.StoredEncoding
	movements  []database.MovementEvent
	records    map[recordKey]*database.AttendanceRecord
	nextMoveID int64
	nextEncID  int64

	// Error injection
	AppendError        error
	ListMovementsError error
	RecordArrivalError error
	ApplyError         error
	GetSessionError    error
	MarkError          error
	PingError          error
	ReportError        error

	// AppendHook, when set, runs before every ledger write (entry or exit).
	// Tests use it to block or count writes.
	AppendHook func(ev database.MovementEvent)
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*database.ClassSession),
		students: make(map[string]*database.Student),
		records:  make(map[recordKey]*database.AttendanceRecord),
	}
}

var _ database.Store = (*MockStore)(nil)

// AddSession adds a session to the mock store
func (m *MockStore) AddSession(s database.ClassSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &s
}

// AddStudent adds a student to the mock store
func (m *MockStore) AddStudent(s database.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = &s
}

// AddMovement appends a ledger event directly, bypassing hooks and errors
func (m *MockStore) AddMovement(ev database.MovementEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMoveID++
	ev.ID = m.nextMoveID
	m.movements = append(m.movements, ev)
}

// AddRecord stores an attendance record directly
func (m *MockStore) AddRecord(rec database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.SessionID, rec.StudentID}] = &rec
}

// Movements returns a copy of all ledger events in insertion order
func (m *MockStore) Movements() []database.MovementEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.MovementEvent, len(m.movements))
	copy(out, m.movements)
	return out
}

// Ping implements database.Store
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingError
}

// AppendMovement appends a ledger event
func (m *MockStore) AppendMovement(ctx context.Context, ev database.MovementEvent) error {
	if m.AppendHook != nil {
		m.AppendHook(ev)
	}
	if m.AppendError != nil {
		return m.AppendError
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("invalid movement kind %q", ev.Kind)
	}
	m.AddMovement(ev)
	return nil
}

// ListMovements returns a session's events ordered by timestamp then ID
func (m *MockStore) ListMovements(ctx context.Context, sessionID string) ([]database.MovementEvent, error) {
	if m.ListMovementsError != nil {
		return nil, m.ListMovementsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.MovementEvent
	for _, ev := range m.movements {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetAttendanceRecord returns nil if no record exists
func (m *MockStore) GetAttendanceRecord(ctx context.Context, sessionID, studentID string) (*database.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{sessionID, studentID}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// ListAttendanceRecords returns a session's records ordered by student ID
func (m *MockStore) ListAttendanceRecords(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for k, rec := range m.records {
		if k.sessionID == sessionID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

// ListStudentAttendance returns a student's records ordered by session ID
func (m *MockStore) ListStudentAttendance(ctx context.Context, studentID string) ([]database.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for k, rec := range m.records {
		if k.studentID == studentID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

// RecordArrival appends an entry and creates the record if missing
func (m *MockStore) RecordArrival(ctx context.Context, ev database.MovementEvent) (bool, error) {
	if m.AppendHook != nil {
		m.AppendHook(ev)
	}
	if m.RecordArrivalError != nil {
		return false, m.RecordArrivalError
	}
	ev.Kind = database.MovementEntry

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMoveID++
	ev.ID = m.nextMoveID
	m.movements = append(m.movements, ev)

	key := recordKey{ev.SessionID, ev.StudentID}
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = &database.AttendanceRecord{
		StudentID: ev.StudentID,
		SessionID: ev.SessionID,
		EntryTime: ev.Timestamp,
		Status:    database.StatusPresent,
		UpdatedAt: time.Now(),
	}
	return true, nil
}

// UpsertAttendanceRecord inserts or replaces a record
func (m *MockStore) UpsertAttendanceRecord(ctx context.Context, rec database.AttendanceRecord) error {
	m.AddRecord(rec)
	return nil
}

// ApplyReconciliation overwrites the reconciled fields of all given records or none
func (m *MockStore) ApplyReconciliation(ctx context.Context, sessionID string, recs []database.AttendanceRecord) error {
	if m.ApplyError != nil {
		return m.ApplyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range recs {
		if _, ok := m.records[recordKey{sessionID, rec.StudentID}]; !ok {
			return fmt.Errorf("attendance record %s/%s: %w", sessionID, rec.StudentID, database.ErrNotFound)
		}
	}
	now := time.Now()
	for _, rec := range recs {
		stored := m.records[recordKey{sessionID, rec.StudentID}]
		stored.TotalTimePresent = rec.TotalTimePresent
		stored.PercentagePresent = rec.PercentagePresent
		stored.Status = rec.Status
		stored.Reconciled = true
		stored.UpdatedAt = now
	}
	return nil
}

// GetSession returns nil if the session does not exist
func (m *MockStore) GetSession(ctx context.Context, id string) (*database.ClassSession, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// ListSessions returns sessions, newest start time first
func (m *MockStore) ListSessions(ctx context.Context) ([]database.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.ClassSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

// ListLiveSessions returns sessions that are started and not stopped
func (m *MockStore) ListLiveSessions(ctx context.Context) ([]database.ClassSession, error) {
	all, err := m.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.ClassSession
	for i := range all {
		if all[i].IsLive() {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// CreateSession stores a new session
func (m *MockStore) CreateSession(ctx context.Context, s *database.ClassSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.AddSession(*s)
	return nil
}

// MarkSessionLive sets live_since
func (m *MockStore) MarkSessionLive(ctx context.Context, id string, at time.Time) error {
	if m.MarkError != nil {
		return m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return database.ErrNotFound
	}
	s.LiveSince = &at
	return nil
}

// MarkSessionStopped sets stopped_at
func (m *MockStore) MarkSessionStopped(ctx context.Context, id string, at time.Time) error {
	if m.MarkError != nil {
		return m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return database.ErrNotFound
	}
	s.StoppedAt = &at
	return nil
}

// PurgeSessionData removes a session's movements and records
func (m *MockStore) PurgeSessionData(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.movements[:0]
	for _, ev := range m.movements {
		if ev.SessionID != id {
			kept = append(kept, ev)
		}
	}
	m.movements = kept
	for k := range m.records {
		if k.sessionID == id {
			delete(m.records, k)
		}
	}
	return nil
}

// DeleteSession removes a session and its data
func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	if err := m.PurgeSessionData(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// PurgeReports removes all movements and records
func (m *MockStore) PurgeReports(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements = nil
	m.records = make(map[recordKey]*database.AttendanceRecord)
	return nil
}

// PurgeSessions removes all sessions, movements and records
func (m *MockStore) PurgeSessions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements = nil
	m.records = make(map[recordKey]*database.AttendanceRecord)
	m.sessions = make(map[string]*database.ClassSession)
	return nil
}

// GetStudent returns nil if the student does not exist
func (m *MockStore) GetStudent(ctx context.Context, id string) (*database.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// ListStudents returns students ordered by name
func (m *MockStore) ListStudents(ctx context.Context) ([]database.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindStudentsByName returns students whose normalized name matches exactly
func (m *MockStore) FindStudentsByName(ctx context.Context, normalizedName string) ([]database.Student, error) {
	all, _ := m.ListStudents(ctx)
	var out []database.Student
	for _, s := range all {
		if s.NormalizedName == normalizedName {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListEncodings returns all encodings
func (m *MockStore) ListEncodings(ctx context.Context) ([]database.StoredEncoding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredEncoding, len(m.encodings))
	copy(out, m.encodings)
	return out, nil
}

// CreateStudent stores a new student
func (m *MockStore) CreateStudent(ctx context.Context, s *database.Student) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.AddStudent(*s)
	return nil
}

// DeleteStudent removes a student, their encodings and attendance
func (m *MockStore) DeleteStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.students, id)
	kept := m.encodings[:0]
	for _, enc := range m.encodings {
		if enc.StudentID != id {
			kept = append(kept, enc)
		}
	}
	m.encodings = kept
	for k := range m.records {
		if k.studentID == id {
			delete(m.records, k)
		}
	}
	return nil
}

// SaveEncodings appends encodings for a student
func (m *MockStore) SaveEncodings(ctx context.Context, studentID string, embeddings [][]float32) ([]database.StoredEncoding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return nil, database.ErrNotFound
	}
	saved := make([]database.StoredEncoding, 0, len(embeddings))
	for _, emb := range embeddings {
		m.nextEncID++
		enc := database.StoredEncoding{
			ID:        m.nextEncID,
			StudentID: studentID,
			Embedding: emb,
			CreatedAt: time.Now(),
		}
		m.encodings = append(m.encodings, enc)
		saved = append(saved, enc)
	}
	return saved, nil
}

// MonthlyReport counts sessions in the month and the student's attended ones
func (m *MockStore) MonthlyReport(ctx context.Context, studentID string, year, month int) (*database.MonthlyReport, error) {
	if m.ReportError != nil {
		return nil, m.ReportError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := &database.MonthlyReport{StudentID: studentID, Year: year, Month: month}
	for _, s := range m.sessions {
		if s.StartTime.Year() != year || int(s.StartTime.Month()) != month {
			continue
		}
		report.TotalClasses++
		if rec, ok := m.records[recordKey{s.ID, studentID}]; ok && rec.Status.Attended() {
			report.Attended++
		}
	}
	if report.TotalClasses > 0 {
		report.Percentage = float64(report.Attended) * 100 / float64(report.TotalClasses)
	}
	return report, nil
}

func (m *MockStore) statsLocked() []database.StudentAttendanceStats {
	out := make([]database.StudentAttendanceStats, 0, len(m.students))
	for _, s := range m.students {
		st := database.StudentAttendanceStats{Student: *s}
		for k, rec := range m.records {
			if k.studentID != s.ID {
				continue
			}
			st.TotalClasses++
			if rec.Status.Attended() {
				st.Attended++
			}
		}
		if st.TotalClasses > 0 {
			st.AttendancePercentage = float64(st.Attended) * 100 / float64(st.TotalClasses)
		}
		out = append(out, st)
	}
	return out
}

// LowAttendance returns students below the threshold, lowest first
func (m *MockStore) LowAttendance(ctx context.Context, threshold float64) ([]database.StudentAttendanceStats, error) {
	if m.ReportError != nil {
		return nil, m.ReportError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StudentAttendanceStats
	for _, st := range m.statsLocked() {
		if st.TotalClasses > 0 && st.AttendancePercentage < threshold {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttendancePercentage < out[j].AttendancePercentage })
	return out, nil
}

// AttendanceStats returns stats for all students ordered by name
func (m *MockStore) AttendanceStats(ctx context.Context) ([]database.StudentAttendanceStats, error) {
	if m.ReportError != nil {
		return nil, m.ReportError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.statsLocked()
	sort.Slice(out, func(i, j int) bool { return out[i].Student.Name < out[j].Student.Name })
	return out, nil
}

func inWindow(t, since, until time.Time) bool {
	return !t.Before(since) && !t.After(until)
}

// DashboardStats aggregates departments and the activity between since and until
func (m *MockStore) DashboardStats(ctx context.Context, since, until time.Time) (*database.DashboardStats, error) {
	if m.ReportError != nil {
		return nil, m.ReportError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := &database.DashboardStats{
		TotalStudents: len(m.students),
		TotalSessions: len(m.sessions),
	}

	type deptAcc struct {
		stats database.DepartmentStats
		sum   float64
		rows  int
	}
	depts := make(map[string]*deptAcc)
	for _, s := range m.students {
		if inWindow(s.CreatedAt, since, until) {
			out.NewRegistrations++
		}
		if s.Department == "" {
			continue
		}
		acc, ok := depts[s.Department]
		if !ok {
			acc = &deptAcc{stats: database.DepartmentStats{Name: s.Department}}
			depts[s.Department] = acc
		}
		acc.stats.TotalStudents++

		attended, records := false, 0
		for k, rec := range m.records {
			if k.studentID != s.ID {
				continue
			}
			records++
			acc.sum += rec.PercentagePresent
			if rec.Status.Attended() {
				attended = true
			}
		}
		if records == 0 {
			records = 1
		}
		acc.rows += records
		if attended {
			acc.stats.ActiveStudents++
		}
	}
	for _, acc := range depts {
		if acc.rows > 0 {
			acc.stats.AverageAttendance = acc.sum / float64(acc.rows)
		}
		out.Departments = append(out.Departments, acc.stats)
	}
	sort.Slice(out.Departments, func(i, j int) bool { return out.Departments[i].Name < out.Departments[j].Name })
	out.TotalDepartments = len(out.Departments)

	for _, sess := range m.sessions {
		if inWindow(sess.EndTime, since, until) {
			out.SessionsCompleted++
		}
	}
	var sum float64
	var n int
	for k, rec := range m.records {
		sess, ok := m.sessions[k.sessionID]
		if ok && inWindow(sess.StartTime, since, until) {
			sum += rec.PercentagePresent
			n++
		}
	}
	if n > 0 {
		out.AverageAttendance = sum / float64(n)
	}
	return out, nil
}
