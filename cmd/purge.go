package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var purgeCmd = &cobra.Command{
	Use:   "purge [session-id]",
	Short: "Delete attendance data",
	Long: `Delete attendance data.

With a session id, the session's movements and attendance records are
deleted and the session itself is kept. With --reports, every movement and
attendance record is deleted. Sessions, students and encodings are kept.
With --sessions, every session is deleted together with its data.

The global purges refuse to run while any session is live.

Examples:
  face-attendance purge 6f1c2a9e-...
  face-attendance purge --reports --yes
  face-attendance purge --sessions --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().Bool("reports", false, "Delete all movements and attendance records")
	purgeCmd.Flags().Bool("sessions", false, "Delete all sessions with their movements and records")
	purgeCmd.Flags().Bool("yes", false, "Confirm a global purge")
}

func runPurge(cmd *cobra.Command, args []string) error {
	reports := mustGetBool(cmd, "reports")
	sessions := mustGetBool(cmd, "sessions")

	modes := 0
	for _, set := range []bool{reports, sessions, len(args) == 1} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("pass exactly one of a session id, --reports or --sessions")
	}
	if (reports || sessions) && !mustGetBool(cmd, "yes") {
		return errors.New("a global purge requires --yes")
	}

	ctx := context.Background()
	store, err := connectBackend(ctx, config.Load(), true)
	if err != nil {
		return err
	}
	defer closeBackend()

	if reports || sessions {
		if err := ensureNoLiveSessions(ctx, store); err != nil {
			return err
		}
	}

	switch {
	case reports:
		if err := store.PurgeReports(ctx); err != nil {
			return fmt.Errorf("purging reports: %w", err)
		}
		fmt.Println("All movements and attendance records deleted")
	case sessions:
		if err := store.PurgeSessions(ctx); err != nil {
			return fmt.Errorf("purging sessions: %w", err)
		}
		fmt.Println("All sessions and their attendance data deleted")
	default:
		if err := store.PurgeSessionData(ctx, args[0]); err != nil {
			return fmt.Errorf("purging session %s: %w", args[0], err)
		}
		fmt.Printf("Attendance data of session %s deleted\n", args[0])
	}
	return nil
}

func ensureNoLiveSessions(ctx context.Context, store database.SessionReader) error {
	live, err := store.ListLiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing live sessions: %w", err)
	}
	if len(live) == 0 {
		return nil
	}
	ids := make([]string, len(live))
	for i := range live {
		ids[i] = live[i].ID
	}
	return fmt.Errorf("sessions are live (%s), stop them first", strings.Join(ids, ", "))
}
