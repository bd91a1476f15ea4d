package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
)

// connectBackend connects the configured database, runs migrations and
// returns the registered store.
func connectBackend(ctx context.Context, cfg *config.Config, quiet bool) (database.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	switch cfg.Database.Driver {
	case "", "postgres", "postgresql":
		if !quiet {
			fmt.Println("Connecting to PostgreSQL database...")
		}
		if err := postgres.Initialize(&cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
	case "mariadb", "mysql":
		if !quiet {
			fmt.Println("Connecting to MariaDB database...")
		}
		if err := mariadb.Initialize(&cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (postgres or mariadb)", cfg.Database.Driver)
	}

	store, err := database.GetStore(ctx)
	if err != nil {
		return nil, err
	}
	if !quiet {
		fmt.Printf("Using %s backend\n", database.BackendName())
	}
	return store, nil
}

// closeBackend closes the pool opened by connectBackend.
func closeBackend() {
	type closer interface{ Close() error }
	var pool closer
	switch database.BackendName() {
	case "postgres":
		if p := postgres.GetGlobalPool(); p != nil {
			pool = p
		}
	case "mariadb":
		if p := mariadb.GetGlobalPool(); p != nil {
			pool = p
		}
	}
	if pool == nil {
		return
	}
	if err := pool.Close(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
