package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/logging"
)

// DefaultSweepInterval is how often the sweeper scans for silent students.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically turns silences longer than the exit timeout into exits.
type Sweeper struct {
	tracker  *Tracker
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper for the tracker's live sessions.
func NewSweeper(tracker *Tracker, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		tracker:  tracker,
		interval: interval,
		logger:   logging.OrDiscard(logger).With("component", "sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("exit sweeper started",
		"interval", s.interval,
		"exit_timeout", s.tracker.ExitTimeout())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("exit sweeper stopped")
			return nil
		case <-ticker.C:
			if n := s.SweepOnce(ctx); n > 0 {
				s.logger.Debug("sweep finished", "exits", n)
			}
		}
	}
}

// SweepOnce runs a single scan and returns the number of exits written.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	return s.tracker.sweep(ctx)
}
