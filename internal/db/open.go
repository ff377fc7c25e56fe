package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MirrorFileName is the mirror database file inside the data directory.
const MirrorFileName = "parley.db"

// OpenDatabase opens (creating if needed) the mirror database at path and
// ensures the schema exists.
func OpenDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	exists, err := SchemaExists(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !exists {
		if err := InitSchema(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
