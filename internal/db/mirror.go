package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adamavenir/parley/internal/types"
)

// Mirror keys.
const (
	KeyConversations = "conversations"
	KeyMessages      = "messages"
	KeySessionToken  = "session_token"
)

// ErrCorrupt marks mirror entries that exist but do not decode. The snapshot
// returned alongside it is still usable; corrupt parts are empty.
var ErrCorrupt = errors.New("corrupt mirror entry")

// Mirror is the durable local copy of the store.
type Mirror struct {
	db  *sql.DB
	now func() time.Time
}

// NewMirror wraps an open database that already has the schema.
func NewMirror(db *sql.DB) *Mirror {
	return &Mirror{db: db, now: time.Now}
}

// OpenMirror opens the mirror database at path.
func OpenMirror(path string) (*Mirror, error) {
	conn, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewMirror(conn), nil
}

// Close closes the underlying database.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// GetValue returns the raw value for key.
func GetValue(db DBTX, key string) (string, bool, error) {
	row := db.QueryRow("SELECT value FROM parley_mirror WHERE key = ?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetValue stores value under key.
func SetValue(db DBTX, key, value string, updatedAt time.Time) error {
	_, err := db.Exec(
		"INSERT OR REPLACE INTO parley_mirror (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, updatedAt.UnixMilli(),
	)
	return err
}

// DeleteValue removes key.
func DeleteValue(db DBTX, key string) error {
	_, err := db.Exec("DELETE FROM parley_mirror WHERE key = ?", key)
	return err
}

// LoadSnapshot reads the mirrored conversations and message logs. Missing
// entries yield an empty snapshot. Entries that fail to decode are skipped
// and reported with ErrCorrupt.
func (m *Mirror) LoadSnapshot() (types.Snapshot, error) {
	snap := types.Snapshot{Messages: map[string][]types.Message{}}
	var corrupt []string

	raw, ok, err := GetValue(m.db, KeyConversations)
	if err != nil {
		return snap, err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &snap.Conversations); err != nil {
			snap.Conversations = nil
			corrupt = append(corrupt, KeyConversations)
		}
	}

	raw, ok, err = GetValue(m.db, KeyMessages)
	if err != nil {
		return snap, err
	}
	if ok {
		var logs map[string][]types.Message
		if err := json.Unmarshal([]byte(raw), &logs); err != nil {
			corrupt = append(corrupt, KeyMessages)
		} else if logs != nil {
			snap.Messages = logs
		}
	}

	if len(corrupt) > 0 {
		return snap, fmt.Errorf("%w: %v", ErrCorrupt, corrupt)
	}
	return snap, nil
}

// SaveSnapshot writes conversations and message logs in one transaction.
func (m *Mirror) SaveSnapshot(snap types.Snapshot) error {
	convs, err := json.Marshal(nonNilConversations(snap.Conversations))
	if err != nil {
		return err
	}
	logs := snap.Messages
	if logs == nil {
		logs = map[string][]types.Message{}
	}
	msgs, err := json.Marshal(logs)
	if err != nil {
		return err
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	now := m.now()
	if err := SetValue(tx, KeyConversations, string(convs), now); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := SetValue(tx, KeyMessages, string(msgs), now); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LoadToken returns the stored session token, or "" when none is stored.
func (m *Mirror) LoadToken() (string, error) {
	raw, ok, err := GetValue(m.db, KeySessionToken)
	if err != nil || !ok {
		return "", err
	}
	var token string
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return "", nil
	}
	return token, nil
}

// SaveToken stores the session token. An empty token clears it.
func (m *Mirror) SaveToken(token string) error {
	if token == "" {
		return DeleteValue(m.db, KeySessionToken)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return SetValue(m.db, KeySessionToken, string(data), m.now())
}

func nonNilConversations(convs []types.Conversation) []types.Conversation {
	if convs == nil {
		return []types.Conversation{}
	}
	return convs
}
