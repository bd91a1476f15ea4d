package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage class sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List class sessions",
	RunE:  runSessionList,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Mark a dangling live session as stopped",
	Long: `Mark a session that is still flagged live in the database as stopped.

Live presence is kept in the memory of the serve process, so this command
cannot write exits for students who were in the room. Use it when a server
died and the session must not be resumed. Students whose last ledger event
is an entry are counted as present until the session end when reconciled.
To stop a session of a running server, call POST /api/v1/sessions/{id}/stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionStop,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionStopCmd)

	sessionListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSessionList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	store, err := connectBackend(ctx, config.Load(), true)
	if err != nil {
		return err
	}
	defer closeBackend()
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if jsonOutput {
		return outputJSON(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	fmt.Printf("%-38s %-24s %-17s %6s %s\n", "ID", "SUBJECT", "START", "MIN", "STATE")
	for i := range sessions {
		s := &sessions[i]
		state := "-"
		switch {
		case s.IsLive():
			state = "live"
		case s.StoppedAt != nil:
			state = "stopped"
		}
		fmt.Printf("%-38s %-24s %-17s %6d %s\n",
			s.ID, s.Subject, s.StartTime.UTC().Format("2006-01-02 15:04"), s.DurationMinutes, state)
	}
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	store, err := connectBackend(ctx, config.Load(), true)
	if err != nil {
		return err
	}
	defer closeBackend()
	session, err := store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if !session.IsLive() {
		return errors.New("session is not live")
	}
	if err := store.MarkSessionStopped(ctx, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking session stopped: %w", err)
	}
	fmt.Printf("Session %s marked stopped\n", id)
	return nil
}
