package mariadb

import (
	"context"
	"embed"

	"github.com/kozaktomas/face-attendance/internal/database/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations. MariaDB commits DDL implicitly, so
// every statement of a migration must be safe to re-run.
func (p *Pool) Migrate(ctx context.Context) error {
	return migrate.Apply(ctx, p.db, migrationsFS, "migrations", migrate.MySQL)
}

// MigrationsApplied returns the list of applied migrations
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	return migrate.Applied(ctx, p.db, migrate.MySQL)
}
