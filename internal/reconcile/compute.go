package reconcile

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Policy holds the attendance thresholds.
type Policy struct {
	// MaxAbsenceRatio is the share of the session a student may be absent
	// before the status becomes partial.
	MaxAbsenceRatio float64
	// PresentThreshold is the minimum percentage for present.
	PresentThreshold float64
}

// DefaultPolicy is the 10% rule with a 90% present threshold.
func DefaultPolicy() Policy {
	return Policy{MaxAbsenceRatio: 0.10, PresentThreshold: 90}
}

// PolicyFromConfig builds a policy from the ATTENDANCE_* settings.
func PolicyFromConfig(cfg config.AttendanceConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAbsenceRatio > 0 {
		p.MaxAbsenceRatio = cfg.MaxAbsenceRatio
	}
	if cfg.PresentThreshold > 0 {
		p.PresentThreshold = cfg.PresentThreshold
	}
	return p
}

// IntegrityWarning reports a ledger sequence that breaks entry/exit alternation.
type IntegrityWarning struct {
	StudentID string                `json:"student_id"`
	EventID   int64                 `json:"event_id"`
	Kind      database.MovementKind `json:"kind"`
	Timestamp time.Time             `json:"timestamp"`
	Reason    string                `json:"reason"`
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("%s: %s %s at %s", w.StudentID, w.Reason, w.Kind, w.Timestamp.Format(time.RFC3339))
}

// StudentResult is the reconciled outcome for one student.
type StudentResult struct {
	StudentID      string                    `json:"student_id"`
	AbsenceMinutes float64                   `json:"absence_minutes"`
	TimePresent    float64                   `json:"time_present"`
	Percentage     float64                   `json:"percentage_present"`
	Status         database.AttendanceStatus `json:"status"`
	Warnings       []IntegrityWarning        `json:"warnings,omitempty"`
}

type presence int

const (
	unknown presence = iota
	inside
	outside
)

// Compute derives a student's attendance from their ledger events, which must
// be ordered by time. Absence intervals run from an exit to the next entry;
// an interval still open ends at the earlier of now and the session end.
// The session duration must be positive.
func Compute(session *database.ClassSession, studentID string, events []database.MovementEvent, now time.Time, policy Policy) StudentResult {
	res := StudentResult{StudentID: studentID}

	state := unknown
	var awaySince time.Time
	warn := func(ev database.MovementEvent, reason string) {
		res.Warnings = append(res.Warnings, IntegrityWarning{
			StudentID: studentID,
			EventID:   ev.ID,
			Kind:      ev.Kind,
			Timestamp: ev.Timestamp,
			Reason:    reason,
		})
	}

	for _, ev := range events {
		switch ev.Kind {
		case database.MovementEntry:
			switch state {
			case outside:
				res.AbsenceMinutes += clippedMinutes(session, awaySince, ev.Timestamp)
			case inside:
				warn(ev, "repeated entry ignored")
			}
			state = inside
		case database.MovementExit:
			switch state {
			case unknown:
				warn(ev, "exit before any entry")
				awaySince = ev.Timestamp
			case inside:
				awaySince = ev.Timestamp
			case outside:
				warn(ev, "repeated exit ignored")
			}
			state = outside
		default:
			warn(ev, "unknown movement kind")
		}
	}

	if state == outside {
		end := now
		if !session.EndTime.IsZero() && session.EndTime.Before(end) {
			end = session.EndTime
		}
		res.AbsenceMinutes += clippedMinutes(session, awaySince, end)
	}

	duration := float64(session.DurationMinutes)
	res.TimePresent = max(0, duration-res.AbsenceMinutes)
	if duration > 0 {
		res.Percentage = 100 * res.TimePresent / duration
	}
	res.Status = Classify(res.AbsenceMinutes, res.Percentage, duration, policy)
	return res
}

// Classify applies the status rule: too much absence is partial, otherwise a
// high enough percentage is present, otherwise late.
func Classify(absenceMinutes, percentage, durationMinutes float64, policy Policy) database.AttendanceStatus {
	switch {
	case absenceMinutes > policy.MaxAbsenceRatio*durationMinutes:
		return database.StatusPartial
	case percentage >= policy.PresentThreshold:
		return database.StatusPresent
	default:
		return database.StatusLate
	}
}

// clippedMinutes returns the minutes between from and to that fall inside the
// session window. Missing window bounds do not clip.
func clippedMinutes(session *database.ClassSession, from, to time.Time) float64 {
	if !session.StartTime.IsZero() && from.Before(session.StartTime) {
		from = session.StartTime
	}
	if !session.EndTime.IsZero() && to.After(session.EndTime) {
		to = session.EndTime
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from).Minutes()
}
