package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("no rows found")

// Store implements the user, friend, group and offline-message gateways on
// one sqlite database. It is safe for concurrent use.
type Store struct {
	conn *sql.DB
}

func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'offline' CHECK (state IN ('online', 'offline'))
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			userid INTEGER NOT NULL REFERENCES users(id),
			friendid INTEGER NOT NULL REFERENCES users(id),
			PRIMARY KEY (userid, friendid)
		)`,
		`CREATE TABLE IF NOT EXISTS allgroup (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			groupname TEXT UNIQUE NOT NULL,
			groupdesc TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS groupuser (
			groupid INTEGER NOT NULL REFERENCES allgroup(id) ON DELETE CASCADE,
			userid INTEGER NOT NULL REFERENCES users(id),
			grouprole TEXT NOT NULL CHECK (grouprole IN ('creator', 'normal')),
			PRIMARY KEY (groupid, userid)
		)`,
		`CREATE TABLE IF NOT EXISTS offlinemessage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			userid INTEGER NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_state ON users(state)`,
		`CREATE INDEX IF NOT EXISTS idx_groupuser_user ON groupuser(userid)`,
		`CREATE INDEX IF NOT EXISTS idx_offlinemessage_user ON offlinemessage(userid, id)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return nil
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
