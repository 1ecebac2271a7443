// Package db opens SQLite databases through sqlx with the pragmas the state store expects.
package db

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/jmoiron/sqlx"
)

const memoryPath = ":memory:"

const defaultPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=FULL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

type options struct {
	path            string
	pragmas         string
	maxOpenConns    int
	connMaxLifetime time.Duration
}

type SqliteOption func(*options)

// WithPath sets the database file. ":memory:" (the default) keeps everything in RAM.
func WithPath(path string) SqliteOption {
	return func(o *options) { o.path = path }
}

// WithPragmas replaces the default pragma block
func WithPragmas(pragmas string) SqliteOption {
	return func(o *options) { o.pragmas = pragmas }
}

func WithMaxOpenConns(n int) SqliteOption {
	return func(o *options) { o.maxOpenConns = n }
}

func WithConnMaxLifetime(d time.Duration) SqliteOption {
	return func(o *options) { o.connMaxLifetime = d }
}

// NewSqliteDB opens (creating if needed) a SQLite database and applies the pragmas.
func NewSqliteDB(opts ...SqliteOption) (*sqlx.DB, error) {
	o := &options{
		path:    memoryPath,
		pragmas: defaultPragmas,
	}
	for _, opt := range opts {
		opt(o)
	}

	dsn := memoryPath
	if o.path != memoryPath {
		if err := utils.EnsureParent(o.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", o.path)
	} else {
		// every pooled connection to ":memory:" would otherwise see its own empty database
		o.maxOpenConns = 1
	}

	slog.Debug("db", "driver", driverID, "path", o.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}
	if o.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.connMaxLifetime)
	}

	if strings.TrimSpace(o.pragmas) != "" {
		if _, err := db.Exec(o.pragmas); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragmas: %w", err)
		}
	}

	return db, nil
}
