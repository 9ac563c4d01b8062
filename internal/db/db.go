// Package db persists training sets and backups in SQLite and exposes the
// database on the admin debug routes.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/limbcontrol/internal/monitoring"
	"github.com/banshee-data/limbcontrol/internal/timeutil"
)

var logs = monitoring.NewStreams("db")

// SetLogWriters configures the db package log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

// DB wraps the SQLite handle. It implements training.Persister.
type DB struct {
	*sql.DB
	path      string
	backupDir string
	clock     timeutil.Clock
}

// Option customises a DB.
type Option func(*DB)

// WithBackupDir sets where Backup writes snapshots; defaults to a "backups"
// directory next to the database file.
func WithBackupDir(dir string) Option { return func(d *DB) { d.backupDir = dir } }

// WithClock overrides the wall clock used for timestamps.
func WithClock(c timeutil.Clock) Option { return func(d *DB) { d.clock = c } }

// pragmas are applied to every pooled connection.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

func dsn(path string) string {
	q := ""
	for i, p := range pragmas {
		if i == 0 {
			q += "?"
		} else {
			q += "&"
		}
		q += "_pragma=" + p
	}
	return "file:" + path + q
}

// OpenDB opens the database without touching the schema. The migrate
// subcommand uses it so migrations stay in control.
func OpenDB(path string, options ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &DB{
		DB:        sqlDB,
		path:      path,
		backupDir: filepath.Join(filepath.Dir(path), "backups"),
		clock:     timeutil.RealClock{},
	}
	for _, o := range options {
		o(d)
	}
	return d, nil
}

// NewDB opens the database and applies all pending migrations.
func NewDB(path string, options ...Option) (*DB, error) {
	d, err := OpenDB(path, options...)
	if err != nil {
		return nil, err
	}
	if err := d.MigrateUp(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }
