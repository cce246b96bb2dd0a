// Package store is the durable queue and allocation protocol (spec.md
// §4.1): a single-file SQLite database that every Client, Monitor, and Hog
// process opens independently and uses both as a job queue and as a
// heartbeat-based liveness channel.
//
// Design Philosophy:
//
//	The store owns exactly one thing other packages must not: the claim
//	transaction (Claim, in claim.go) that moves a job from waiting to
//	running. Everything else here is straightforward CRUD, kept in one
//	package so every caller shares the same busy-timeout and foreign-key
//	configuration.
package store

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection shared by a single process. It is safe
// for concurrent use by multiple goroutines within that process; exclusion
// across processes is provided by SQLite's own transaction locking.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// ErrStoreExists is returned by Init when the database file is already
// present — init refuses to clobber existing state (spec.md §4.2).
var ErrStoreExists = fmt.Errorf("store: database file already exists")

// Open opens (or creates) the SQLite database at path and configures it
// per spec.md §4.1: a busy-wait timeout so contention blocks rather than
// fails, and foreign keys enforced. WAL journal mode lets readers (show,
// check) proceed without blocking on the writer doing a claim.
func Open(path string, busyTimeoutSeconds int) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)",
		path, busyTimeoutSeconds*1000,
	)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite allows only one writer at a time; a single shared connection
	// avoids SQLITE_BUSY storms from Go's connection pool fighting itself
	// within this process. Cross-process contention is handled by the
	// busy_timeout pragma above.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Store{db: db, log: slog.Default().With("component", "store")}, nil
}

// Init creates the schema at path. It refuses if the file already exists
// (spec.md §4.2 "init"); exit-code mapping is the CLI layer's job.
func Init(path string, busyTimeoutSeconds int) error {
	if _, err := os.Stat(path); err == nil {
		return ErrStoreExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("init store: %w", err)
	}

	s, err := Open(path, busyTimeoutSeconds)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	s.log.Info("store initialized", "path", path)
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sqlx.DB for packages that need a query shape
// the Store doesn't already provide (e.g. tests that backdate a heartbeat).
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// schemaSQL defines jobs, hogs, alloc and the indexes the reaper scans by
// (spec.md §4.2: "(status)" and "(heartbeat, status)" on both jobs and
// hogs).
const schemaSQL = `
CREATE TABLE jobs (
	jobid     INTEGER PRIMARY KEY AUTOINCREMENT,
	exec      TEXT NOT NULL,
	cwd       TEXT NOT NULL,
	stdout    TEXT NOT NULL DEFAULT '',
	stderr    TEXT NOT NULL DEFAULT '',
	env       TEXT NOT NULL DEFAULT '{}',
	status    TEXT NOT NULL DEFAULT 'waiting',
	heartbeat INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_jobs_status            ON jobs(status);
CREATE INDEX idx_jobs_heartbeat_status  ON jobs(heartbeat, status);

CREATE TABLE hogs (
	hogid      INTEGER PRIMARY KEY AUTOINCREMENT,
	pid        INTEGER NOT NULL DEFAULT 0,
	hostname   TEXT NOT NULL DEFAULT '',
	submittime INTEGER NOT NULL DEFAULT 0,
	starttime  INTEGER NOT NULL DEFAULT 0,
	heartbeat  INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'waiting'
);

CREATE INDEX idx_hogs_status           ON hogs(status);
CREATE INDEX idx_hogs_heartbeat_status ON hogs(heartbeat, status);

CREATE TABLE alloc (
	jobid INTEGER NOT NULL REFERENCES jobs(jobid) ON DELETE CASCADE,
	hogid INTEGER NOT NULL REFERENCES hogs(hogid) ON DELETE CASCADE,
	PRIMARY KEY (jobid, hogid)
);
`
