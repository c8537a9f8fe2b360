package database

import (
	"github.com/jackc/pgx/v5/stdlib" // DD-010: the repository layer drives queries through database/sql so it can be unit-tested with go-sqlmock; pgxpool is reserved for the orchestrator's lease query, which needs pgx's native batch/row-lock primitives.
	"github.com/jmoiron/sqlx"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
)

// OpenSQLX opens a *sqlx.DB over the pgx stdlib driver, registered as
// "pgx". pkg/entitystore and pkg/changeledger take this handle rather
// than a *pgxpool.Pool so their repository tests can substitute a
// go-sqlmock connection.
func OpenSQLX(config *Config) (*sqlx.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid database configuration")
	}

	connConfig, err := NewPgxConnConfig(config.ConnectionString())
	if err != nil {
		return nil, err
	}

	sqlDB := stdlib.OpenDB(*connConfig)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return sqlx.NewDb(sqlDB, "pgx"), nil
}
