// Package store is the relational persistence layer for users, messages,
// servers, memberships and invites. All access goes through simple
// parameterized queries; the store owns id and timestamp assignment so the
// gateway can treat its results as authoritative.
package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Sentinel errors mirrored by the gateway's failure-shaped replies.
var (
	// ErrNotFound reports a lookup that matched no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict reports a uniqueness violation, e.g. joining a server the
	// user already belongs to.
	ErrConflict = errors.New("store: conflict")
)

// Store wraps the SQLite handle. A single instance is shared by every
// connection worker; database/sql provides the connection pooling.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	displayname TEXT NOT NULL,
	password TEXT NOT NULL,
	profile_picture TEXT NOT NULL DEFAULT '',
	appearance_status TEXT NOT NULL DEFAULT 'offline',
	custom_status TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	message_ref INTEGER,
	link TEXT
);

CREATE TABLE IF NOT EXISTS servers (
	server_id TEXT PRIMARY KEY,
	server_name TEXT NOT NULL,
	owner TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_servers (
	sid TEXT NOT NULL,
	uid TEXT NOT NULL,
	PRIMARY KEY (sid, uid)
);

CREATE TABLE IF NOT EXISTS server_invites (
	code TEXT PRIMARY KEY,
	sid TEXT NOT NULL,
	issued_by TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_server ON messages(server_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_user_servers_uid ON user_servers(uid);
`

// Open opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "store: open database")
	}

	// SQLite allows one writer at a time, and an in-memory database exists
	// per connection. A single pooled connection keeps both correct.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, errors.Wrap(err, "store: enable foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "store: apply schema")
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// wrapConflict converts a SQLite uniqueness violation into ErrConflict and
// leaves every other error untouched.
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return errors.Mark(err, ErrConflict)
	}
	return err
}
