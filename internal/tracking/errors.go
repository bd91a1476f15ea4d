package tracking

// ErrorClassifier lets callers map tracker errors to a status without
// depending on the sentinel values. Kinds: "no_active_session", "not_found",
// "validation".
type ErrorClassifier interface {
	ErrorKind() string
}

type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string     { return e.msg }
func (e *kindError) ErrorKind() string { return e.kind }

var (
	// ErrNoActiveSession is returned when a session is not live in this tracker.
	ErrNoActiveSession error = &kindError{kind: "no_active_session", msg: "no active session"}

	// ErrSessionNotFound is returned when starting a session the store does not know.
	ErrSessionNotFound error = &kindError{kind: "not_found", msg: "session not found"}

	// ErrInvalidObservation is returned for observations without a student or session.
	ErrInvalidObservation error = &kindError{kind: "validation", msg: "invalid observation"}

	// ErrFutureObservation is returned when observed_at is ahead of the clock
	// by more than the allowed skew.
	ErrFutureObservation error = &kindError{kind: "validation", msg: "observation is in the future"}

	// ErrStudentPresent is returned when removing a student who is present in
	// a live session.
	ErrStudentPresent error = &kindError{kind: "conflict", msg: "student is present in a live session"}
)
