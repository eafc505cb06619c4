package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindInstanceSpawned   Kind = "instance_spawned"
	KindInstanceClosed    Kind = "instance_closed"
	KindSpawnFailed       Kind = "spawn_failed"
	KindCoordination      Kind = "coordination"
	KindStallIntervention Kind = "stall_intervention"
	KindIPCCommand        Kind = "ipc_command"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session is one orchestrator run.
type Session struct {
	ID        string
	WorkDir   string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Entry is one journal record.
type Entry struct {
	ID           int64
	SessionID    string
	Kind         Kind
	InstanceID   string
	InstanceName string
	Detail       string
	CreatedAt    time.Time
}

// StartSession records the start of a session.
func (db *DB) StartSession(id, workDir string, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(`
		INSERT INTO sessions (id, work_dir, started_at) VALUES (?, ?, ?)
	`, id, workDir, formatTime(at))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// EndSession records the end of a session.
func (db *DB) EndSession(id string, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	result, err := db.conn.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Sessions returns up to limit sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, work_dir, started_at, ended_at FROM sessions
		ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started string
		var ended sql.NullString
		if err := rows.Scan(&s.ID, &s.WorkDir, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt, _ = parseTime(started)
		s.EndedAt = parseNullableTime(ended)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Record appends e. A zero CreatedAt is set to now.
func (db *DB) Record(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(`
		INSERT INTO entries (session_id, kind, instance_id, instance_name, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.SessionID, string(e.Kind), e.InstanceID, e.InstanceName, e.Detail, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Filter narrows Recent.
type Filter struct {
	// SessionID restricts entries to one session when set.
	SessionID string
	// Kinds restricts entries to the listed kinds when non-empty.
	Kinds []Kind
	// Limit caps the number of entries. Zero means 50.
	Limit int
}

// Recent returns matching entries, newest first.
func (db *DB) Recent(f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var where []string
	var args []any
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id, session_id, kind, instance_id, instance_name, detail, created_at FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	db.mu.RLock()
	defer db.mu.RUnlock()
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind, created string
		var instID, instName, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &instID, &instName, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.InstanceID = instID.String
		e.InstanceName = instName.String
		e.Detail = detail.String
		e.CreatedAt, _ = parseTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
