// Package database wires the core's Postgres connection pool: the
// jobs/changes/entity tables all live in one database, reached through
// pgx (internal/database, pkg/orchestrator) and sqlx (pkg/entitystore,
// pkg/changeledger).
package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	apperrors "github.com/jordigilh/realestate-collector/internal/errors"
)

// Config holds Postgres connection parameters and pool tuning.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns the development defaults for the collector's
// Postgres connection.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "collector_user",
		Database:        "realestate_collector",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overlays DB_HOST/DB_PORT/DB_USER/DB_PASSWORD/DB_NAME/
// DB_SSL_MODE onto c, leaving existing values in place when a variable
// is unset or (for DB_PORT) unparsable.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

// Validate reports the first structural problem found in c.
func (c *Config) Validate() error {
	if c.Host == "" {
		return apperrors.NewValidationError("database host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return apperrors.NewValidationError("database port must be between 1 and 65535")
	}
	if c.User == "" {
		return apperrors.NewValidationError("database user is required")
	}
	if c.Database == "" {
		return apperrors.NewValidationError("database name is required")
	}
	if c.MaxOpenConns <= 0 {
		return apperrors.NewValidationError("max open connections must be greater than 0")
	}
	if c.MaxIdleConns < 0 {
		return apperrors.NewValidationError("max idle connections must be non-negative")
	}
	return nil
}

// ConnectionString renders c as a libpq keyword/value connection string.
func (c *Config) ConnectionString() string {
	s := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode)
	if c.Password != "" {
		s += fmt.Sprintf(" password=%s", c.Password)
	}
	return s
}

// NewPgxConnConfig parses connString and forces QueryExecModeDescribeExec.
//
// pgx defaults to QueryExecModeCacheStatement, which caches prepared
// statements; if a migration alters the schema while the pool is open the
// cached plan goes stale (SQLSTATE 0A000). DescribeExec re-describes each
// query (so JSONB parameters like Change.ProposedEntityData still get the
// right OID) without caching the plan.
func NewPgxConnConfig(connString string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to parse PostgreSQL connection string")
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	return cfg, nil
}

// Connect validates config and opens a pgx connection pool sized per
// config's Max*Conns settings.
func Connect(config *Config, logger *logrus.Logger) (*pgxpool.Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid database configuration")
	}

	connConfig, err := NewPgxConnConfig(config.ConnectionString())
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to build pool config")
	}
	poolConfig.ConnConfig = connConfig
	poolConfig.MaxConns = int32(config.MaxOpenConns)
	poolConfig.MinConns = int32(config.MaxIdleConns)
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.WithError(err).Error("failed to open database pool")
		return nil, apperrors.NewDatabaseError("connect", err)
	}
	return pool, nil
}
