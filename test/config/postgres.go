// Package config resolves test database configuration from the environment
// and builds the database handles the Postgres integration tests run against.
// When no test database is configured the tests that need one skip.
package config

import (
	"context"
	"database/sql"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for database/sql and sqlx
)

const driverPostgres = "postgres"

// Postgres holds the test database settings, parsed from the environment.
type Postgres struct {
	// DSN is the connection string of the test database. Empty means no test
	// database is available and integration tests skip.
	DSN string `env:"EVENTSTORE_TEST_DSN"`

	// ReplicaDSN optionally points at a read replica for replica-routing tests.
	ReplicaDSN string `env:"EVENTSTORE_TEST_REPLICA_DSN"`

	MaxConns       int32         `env:"EVENTSTORE_TEST_MAX_CONNS" envDefault:"8"`
	MinConns       int32         `env:"EVENTSTORE_TEST_MIN_CONNS" envDefault:"2"`
	ConnectTimeout time.Duration `env:"EVENTSTORE_TEST_CONNECT_TIMEOUT" envDefault:"5s"`
}

// PostgresFromEnv parses the test database settings from the environment.
func PostgresFromEnv() (Postgres, error) {
	var cfg Postgres
	if err := env.Parse(&cfg); err != nil {
		return Postgres{}, err
	}

	return cfg, nil
}

// Available reports whether a test database is configured.
func (c Postgres) Available() bool { return c.DSN != "" }

// PGXPool opens a pgx connection pool on the test database.
func (c Postgres) PGXPool(ctx context.Context) (*pgxpool.Pool, error) {
	return c.pool(ctx, c.DSN)
}

// ReplicaPGXPool opens a pgx connection pool on the replica, falling back to
// the primary DSN when no replica is configured.
func (c Postgres) ReplicaPGXPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := c.ReplicaDSN
	if dsn == "" {
		dsn = c.DSN
	}

	return c.pool(ctx, dsn)
}

func (c Postgres) pool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.ConnectTimeout = c.ConnectTimeout

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// SQLDB opens a database/sql handle on the test database via lib/pq.
func (c Postgres) SQLDB() (*sql.DB, error) {
	db, err := sql.Open(driverPostgres, c.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(int(c.MaxConns))
	db.SetMaxIdleConns(int(c.MinConns))
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// SQLX opens an sqlx handle on the test database via lib/pq.
func (c Postgres) SQLX() (*sqlx.DB, error) {
	db, err := sqlx.Open(driverPostgres, c.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(int(c.MaxConns))
	db.SetMaxIdleConns(int(c.MinConns))
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}
