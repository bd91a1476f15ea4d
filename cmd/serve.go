package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/logging"
	"github.com/kozaktomas/face-attendance/internal/reconcile"
	"github.com/kozaktomas/face-attendance/internal/tracking"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the Face Attendance server.

The server accepts recognitions for live class sessions, runs the exit
sweeper, streams presence changes and serves attendance reports over HTTP.
Sessions that were live when the previous process stopped are resumed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// initGallery loads the face gallery, either from the persisted index or
// from the store.
func initGallery(ctx context.Context, store database.Store, cfg *config.Config, logger *slog.Logger) *facematch.Gallery {
	gallery := facematch.NewGallery(store, facematch.Options{
		DistanceThreshold: cfg.Matching.DistanceThreshold,
		Dim:               cfg.Matching.EmbeddingDim,
		IndexPath:         cfg.Matching.IndexPath,
		StoreSearch:       !cfg.Matching.UseIndex,
		Logger:            logger,
	})
	if err := gallery.Enable(ctx); err != nil {
		fmt.Printf("Warning: Failed to load face gallery: %v\n", err)
		fmt.Printf("Use POST /api/v1/admin/rebuild-index once the database is reachable\n")
	} else {
		fmt.Printf("Face gallery ready with %d encodings\n", gallery.Count())
	}
	database.RegisterGalleryRebuilder(gallery)
	return gallery
}

// saveGallery persists the gallery index during shutdown.
func saveGallery() {
	rebuilder := database.GetGalleryRebuilder()
	if rebuilder == nil {
		return
	}
	if err := rebuilder.Save(); err != nil {
		fmt.Printf("Warning: failed to save face gallery: %v\n", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := connectBackend(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer closeBackend()

	gallery := initGallery(ctx, store, cfg, logger)
	broadcaster := handlers.NewEventBroadcaster()
	tracker := tracking.New(store, tracking.Options{
		ExitTimeout:  cfg.Tracking.ExitTimeout,
		MaxClockSkew: cfg.Tracking.MaxClockSkew,
		Recover:      cfg.Tracking.Recover,
		Logger:       logger,
		Notifier:     broadcaster,
	})
	reconciler := reconcile.New(store, reconcile.Options{
		Policy: reconcile.PolicyFromConfig(cfg.Attendance),
		Logger: logger,
	})

	resumed, err := tracker.ResumeLiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("resuming live sessions: %w", err)
	}
	if len(resumed) > 0 {
		fmt.Printf("Resumed %d live session(s): %v\n", len(resumed), resumed)
	}

	server := web.NewServer(cfg, web.Deps{
		Tracker:     tracker,
		Reconciler:  reconciler,
		Gallery:     gallery,
		Broadcaster: broadcaster,
		Logger:      logger,
	})
	sweeper := tracking.NewSweeper(tracker, cfg.Tracking.SweepInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		saveGallery()
		return err
	})

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
