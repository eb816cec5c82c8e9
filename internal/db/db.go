/*
Package db implements the SQLite-backed store for Spotify credentials,
playback snapshots, now-listening messages and OAuth state tokens.
*/
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Config represents a configuration for the store
type Config struct {
	Path string `toml:"path"`
}

// maximum reconnect retries of a single store operation before its error propagates
const maxConnRetries = 5

// DB is the store handle; all operations share one physical connection
// guarded by a mutex, a single SQLite connection is not safe for concurrent use
type DB struct {
	mu   sync.Mutex
	sqlc *sql.DB
	conn *sql.Conn
	ctx  context.Context
	now  func() int64

	// newState generates OAuth state tokens
	newState func() string
}

// New opens the store and creates the schema; a schema failure here is the
// only store error meant to be fatal to the process
func New(config Config) (*DB, error) {
	sqlc, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, err
	}

	d := &DB{
		sqlc: sqlc,
		ctx:  context.Background(),
		now:  func() int64 { return time.Now().Unix() },

		newState: uuid.NewString,
	}
	if err = d.createTables(); err != nil {
		return nil, err
	}
	return d, nil
}

// Close closes the store
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discardLocked()
	return d.sqlc.Close()
}

// withConn runs fn on the store's connection, reconnecting and retrying from
// scratch on classified connection-lost failures, up to maxConnRetries
func (d *DB) withConn(fn func(conn *sql.Conn) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for attempt := 0; attempt <= maxConnRetries; attempt++ {
		var conn *sql.Conn
		if conn, err = d.acquireLocked(); err == nil {
			if err = fn(conn); !isConnLost(err) {
				return err
			}
		} else if !isConnLost(err) {
			return err
		}
		d.discardLocked()
	}
	return err
}

func (d *DB) acquireLocked() (*sql.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := d.sqlc.Conn(d.ctx)
	if err != nil {
		return nil, err
	}
	d.conn = conn
	return conn, nil
}

func (d *DB) discardLocked() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

// isConnLost reports whether err means the physical connection is no longer
// usable and the operation should be retried on a fresh one
func isConnLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrIoErr || sqliteErr.Code == sqlite3.ErrCantOpen
	}
	return false
}

// isUniqueViolation reports whether err is a unique-constraint collision
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (d *DB) createTables() error {
	return d.withConn(func(conn *sql.Conn) error {
		for _, stmt := range []string{
			`CREATE TABLE IF NOT EXISTS auth_states (
				id INTEGER PRIMARY KEY,
				telegram_user INTEGER UNIQUE NOT NULL,
				state TEXT UNIQUE NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS spotify_users (
				id INTEGER PRIMARY KEY,
				telegram_user INTEGER UNIQUE NOT NULL,
				language_code TEXT NOT NULL DEFAULT '',
				access_token TEXT NOT NULL DEFAULT '',
				token_type TEXT NOT NULL DEFAULT '',
				scope TEXT NOT NULL DEFAULT '',
				expiry_date INTEGER NOT NULL DEFAULT 0,
				refresh_token TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS playing_data (
				id INTEGER PRIMARY KEY,
				telegram_user INTEGER UNIQUE NOT NULL,
				track_name TEXT NOT NULL DEFAULT '',
				track_artist TEXT NOT NULL DEFAULT '',
				track_url TEXT NOT NULL DEFAULT '',
				last_checked INTEGER NOT NULL DEFAULT 0,
				playing BOOLEAN NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS now_listening_messages (
				id INTEGER PRIMARY KEY,
				telegram_user INTEGER NOT NULL,
				inline_message_id TEXT NOT NULL,
				time_added INTEGER NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT 1,
				permanent BOOLEAN NOT NULL DEFAULT 0,
				UNIQUE (telegram_user, inline_message_id)
			)`,
		} {
			if _, err := conn.ExecContext(d.ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
