package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// RunMigrations applies embedded SQL migrations via goose. If database is nil, it's a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	return RunCommand(ctx, database, "up")
}

// RunCommand runs a goose command ("up", "down", "status", "version", ...) against the
// embedded migrations.
func RunCommand(ctx context.Context, database *sql.DB, command string, args ...string) error {
	if database == nil {
		if command == "up" {
			return nil
		}
		return errors.New("migrations require a database")
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if command == "up" {
		return goose.UpContext(ctx, database, migrationsDir)
	}
	return goose.RunContext(ctx, command, database, migrationsDir, args...)
}
