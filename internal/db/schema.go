package db

import (
	"database/sql"
)

const schemaSQL = `
-- String-keyed JSON blobs mirroring the in-memory store
CREATE TABLE IF NOT EXISTS parley_mirror (
  key TEXT PRIMARY KEY,                -- conversations, messages, session_token
  value TEXT NOT NULL,                 -- JSON document
  updated_at INTEGER NOT NULL          -- unix ms of the last write
);
`

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// InitSchema creates the mirror table if it does not exist.
func InitSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SchemaExists reports whether the mirror table is present.
func SchemaExists(db DBTX) (bool, error) {
	row := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'parley_mirror'")
	var name string
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
