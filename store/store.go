// Package store persists discovered links and extracted PDF documents. It
// runs on SQLite (the default) or PostgreSQL through sqlx.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/pevans/linkfeed/failure"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	// pageSize is the number of rows per multi-row INSERT.
	pageSize = 100

	pingTimeout = 5 * time.Second
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Store is a handle on the link database. It is not meant to outlive one
// crawl run; callers Open it, use it and Close it.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database and makes sure the schema exists. Any
// failure here is a failure.Connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, failure.New(failure.Connection, "open database", "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver))
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, failure.New(failure.Connection, "open database", "", fmt.Errorf("failed to open database: %w", err))
	}

	// SQLite allows one writer at a time
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, failure.New(failure.Connection, "open database", "", fmt.Errorf("failed to ping database: %w", err))
	}

	s := New(db)
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, failure.New(failure.Connection, "init schema", "", fmt.Errorf("failed to initialize schema: %w", err))
	}

	return s, nil
}

// New wraps an existing connection. The schema is assumed to exist.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DriverName returns the name of the underlying driver.
func (s *Store) DriverName() string {
	return s.db.DriverName()
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaFor(s.db.DriverName()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// sqliteDSN turns on foreign key enforcement unless the DSN already says
// something about it.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "linkfeed.db"
	}
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

func persistence(op, url string, err error) error {
	return failure.New(failure.Persistence, op, url, err)
}

// utc strips the monotonic reading and sub-second precision so stored
// timestamps compare cleanly as text on SQLite.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
