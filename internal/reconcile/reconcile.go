// Package reconcile turns the movement ledger of a session into final
// attendance figures.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
)

type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string     { return e.msg }
func (e *kindError) ErrorKind() string { return e.kind }

var (
	// ErrInvalidSession is returned for sessions without a positive duration.
	ErrInvalidSession error = &kindError{kind: "invalid_session", msg: "session duration must be positive"}
	// ErrSessionNotFound is returned when the session does not exist.
	ErrSessionNotFound error = &kindError{kind: "not_found", msg: "session not found"}
)

// Store is the persistence the reconciler needs.
type Store interface {
	GetSession(ctx context.Context, id string) (*database.ClassSession, error)
	ListSessions(ctx context.Context) ([]database.ClassSession, error)
	ListMovements(ctx context.Context, sessionID string) ([]database.MovementEvent, error)
	ListAttendanceRecords(ctx context.Context, sessionID string) ([]database.AttendanceRecord, error)
	ApplyReconciliation(ctx context.Context, sessionID string, recs []database.AttendanceRecord) error
}

// Options configures a Reconciler.
type Options struct {
	Policy Policy
	Logger *slog.Logger
	Now    func() time.Time
}

// Reconciler recomputes attendance records from the ledger.
type Reconciler struct {
	store  Store
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// New creates a reconciler. A zero policy means DefaultPolicy.
func New(store Store, opts Options) *Reconciler {
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		store:  store,
		policy: opts.Policy,
		logger: logging.OrDiscard(opts.Logger).With("component", "reconciler"),
		now:    opts.Now,
	}
}

// Reconcile recomputes every attendance record of a session and overwrites
// the stored figures in one write. Running it again yields the same records.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID string) ([]StudentResult, error) {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.DurationMinutes <= 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrInvalidSession)
	}

	records, err := r.store.ListAttendanceRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading attendance of session %s: %w", sessionID, err)
	}
	if len(records) == 0 {
		return []StudentResult{}, nil
	}

	movements, err := r.store.ListMovements(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading movements of session %s: %w", sessionID, err)
	}
	byStudent := make(map[string][]database.MovementEvent)
	for _, ev := range movements {
		byStudent[ev.StudentID] = append(byStudent[ev.StudentID], ev)
	}

	now := r.now()
	results := make([]StudentResult, 0, len(records))
	updates := make([]database.AttendanceRecord, 0, len(records))
	for _, rec := range records {
		res := Compute(session, rec.StudentID, byStudent[rec.StudentID], now, r.policy)
		for _, w := range res.Warnings {
			r.logger.Warn("ledger integrity warning",
				"session_id", sessionID,
				"student_id", w.StudentID,
				"event_id", w.EventID,
				"kind", w.Kind,
				"timestamp", w.Timestamp,
				"reason", w.Reason)
		}
		results = append(results, res)

		rec.TotalTimePresent = res.TimePresent
		rec.PercentagePresent = res.Percentage
		rec.Status = res.Status
		rec.Reconciled = true
		updates = append(updates, rec)
	}

	if err := r.store.ApplyReconciliation(ctx, sessionID, updates); err != nil {
		return nil, fmt.Errorf("saving attendance of session %s: %w", sessionID, err)
	}
	r.logger.Info("session reconciled", "session_id", sessionID, "students", len(results))
	return results, nil
}

// BatchResult summarizes a ReconcileAll run.
type BatchResult struct {
	Sessions int               `json:"sessions"`
	Students int               `json:"students"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// ReconcileAll reconciles every stored session. A failing session is recorded
// in the result and does not stop the batch. progress may be nil.
func (r *Reconciler) ReconcileAll(ctx context.Context, progress func(done, total int)) (*BatchResult, error) {
	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	result := &BatchResult{Failed: make(map[string]string)}
	for i := range sessions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := r.Reconcile(ctx, sessions[i].ID)
		switch {
		case errors.Is(err, ErrInvalidSession):
			r.logger.Warn("skipping session without duration", "session_id", sessions[i].ID)
			result.Failed[sessions[i].ID] = err.Error()
		case err != nil:
			r.logger.Error("reconciliation failed", "session_id", sessions[i].ID, "error", err)
			result.Failed[sessions[i].ID] = err.Error()
		default:
			result.Sessions++
			result.Students += len(res)
		}
		if progress != nil {
			progress(i+1, len(sessions))
		}
	}
	return result, nil
}
