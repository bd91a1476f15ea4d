package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [session-id]",
	Short: "Recompute attendance records from the movement ledger",
	Long: `Recompute the attendance records of a session from its movement ledger.

Reconciliation is idempotent: running it again over the same ledger produces
the same records. Sessions that are still live are reconciled up to now.

Examples:
  # Reconcile one session
  face-attendance reconcile 6f1c2a9e-...

  # Reconcile every session with a progress bar
  face-attendance reconcile --all

  # JSON output for scripting
  face-attendance reconcile --all --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().Bool("all", false, "Reconcile every session")
	reconcileCmd.Flags().Bool("json", false, "Output as JSON instead of text")
}

// ReconcileAllResult represents the result of a batch reconciliation
type ReconcileAllResult struct {
	Success    bool              `json:"success"`
	Sessions   int               `json:"sessions"`
	Students   int               `json:"students"`
	Failed     map[string]string `json:"failed,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func runReconcile(cmd *cobra.Command, args []string) error {
	all := mustGetBool(cmd, "all")
	jsonOutput := mustGetBool(cmd, "json")
	if all == (len(args) == 1) {
		return errors.New("pass either a session id or --all")
	}

	ctx := context.Background()
	cfg := config.Load()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	store, err := connectBackend(ctx, cfg, jsonOutput)
	if err != nil {
		return err
	}
	defer closeBackend()
	reconciler := reconcile.New(store, reconcile.Options{
		Policy: reconcile.PolicyFromConfig(cfg.Attendance),
		Logger: logger,
	})

	if !all {
		return reconcileOne(ctx, reconciler, args[0], jsonOutput)
	}
	return reconcileAll(ctx, reconciler, jsonOutput)
}

func reconcileOne(ctx context.Context, reconciler *reconcile.Reconciler, sessionID string, jsonOutput bool) error {
	results, err := reconciler.Reconcile(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reconciling session %s: %w", sessionID, err)
	}
	if jsonOutput {
		return outputJSON(map[string]any{"session_id": sessionID, "students": results})
	}

	if len(results) == 0 {
		fmt.Println("No attendance records for this session.")
		return nil
	}
	fmt.Printf("\n%-38s %10s %8s %8s\n", "STUDENT", "MINUTES", "PERCENT", "STATUS")
	for _, res := range results {
		fmt.Printf("%-38s %10.1f %7.1f%% %8s\n", res.StudentID, res.TimePresent, res.Percentage, res.Status)
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
	return nil
}

func reconcileAll(ctx context.Context, reconciler *reconcile.Reconciler, jsonOutput bool) error {
	startTime := time.Now()

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if jsonOutput {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Reconciling"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("sessions"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	batch, err := reconciler.ReconcileAll(ctx, progress)
	if err != nil {
		return fmt.Errorf("reconciling sessions: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	result := ReconcileAllResult{
		Success:    len(batch.Failed) == 0,
		Sessions:   batch.Sessions,
		Students:   batch.Students,
		Failed:     batch.Failed,
		DurationMs: time.Since(startTime).Milliseconds(),
	}
	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("\n\nReconciled %d sessions (%d students) in %s\n",
		result.Sessions, result.Students, time.Since(startTime).Round(time.Millisecond))
	if len(batch.Failed) > 0 {
		ids := make([]string, 0, len(batch.Failed))
		for id := range batch.Failed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Printf("Failed sessions: %d\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  %s: %s\n", id, batch.Failed[id])
		}
	}
	return nil
}
