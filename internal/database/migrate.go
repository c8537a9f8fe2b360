package database

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies all pending goose migrations embedded under migrations/
// using db. db must be a *sql.DB (goose drives schema changes through
// database/sql; the pool used for request traffic is the separate pgxpool
// opened by Connect).
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to apply migrations")
	}
	return nil
}

// MigrationStatus reports the current goose version without applying
// anything, useful for a `collectorctl migrate status` subcommand.
func MigrationStatus(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to set goose dialect")
	}
	return goose.Status(db, "migrations")
}
