// Package store persists a fiesta workspace in SQLite: documents,
// dependency declarations, chat history and the terminal log.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"fiesta/internal/assist"
	"fiesta/internal/logging"
	"fiesta/internal/terminal"
	"fiesta/internal/workspace"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	name TEXT PRIMARY KEY,
	language TEXT NOT NULL,
	content TEXT NOT NULL,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS dependencies (
	name TEXT PRIMARY KEY,
	version TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS terminal_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Store is a SQLite-backed workspace store. It implements terminal.Journal.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ terminal.Journal = (*Store)(nil)

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Store("opened workspace store at %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// SaveWorkspace replaces the stored documents, dependencies and active
// document with snap.
func (s *Store) SaveWorkspace(snap workspace.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "SaveWorkspace")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM documents"); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM dependencies"); err != nil {
		return fmt.Errorf("clear dependencies: %w", err)
	}

	pos := 0
	for d := range snap.Files.All() {
		if _, err := tx.Exec(
			"INSERT INTO documents (name, language, content, position) VALUES (?, ?, ?, ?)",
			d.Name, string(d.Language), d.Content, pos,
		); err != nil {
			return fmt.Errorf("insert document %s: %w", d.Name, err)
		}
		pos++
	}
	for i, dep := range snap.Deps.List() {
		if _, err := tx.Exec(
			"INSERT INTO dependencies (name, version, position) VALUES (?, ?, ?)",
			dep.Name, dep.Version, i,
		); err != nil {
			return fmt.Errorf("insert dependency %s: %w", dep.Name, err)
		}
	}
	if _, err := tx.Exec(
		"INSERT INTO meta (key, value) VALUES ('active', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		snap.Active,
	); err != nil {
		return fmt.Errorf("save active document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.StoreDebug("saved %d documents, %d dependencies", snap.Files.Len(), snap.Deps.Len())
	return nil
}

// LoadWorkspace returns the stored snapshot. ok is false when nothing has
// been saved yet.
func (s *Store) LoadWorkspace() (snap workspace.Snapshot, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT name, language, content FROM documents ORDER BY position")
	if err != nil {
		return snap, false, fmt.Errorf("query documents: %w", err)
	}
	files := workspace.NewCollection()
	for rows.Next() {
		var d workspace.Document
		var lang string
		if err := rows.Scan(&d.Name, &lang, &d.Content); err != nil {
			rows.Close()
			return snap, false, fmt.Errorf("scan document: %w", err)
		}
		d.Language = workspace.Language(lang)
		files.Put(d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, false, err
	}
	if files.Len() == 0 {
		return snap, false, nil
	}

	deps := workspace.NewDependencies()
	depRows, err := s.db.Query("SELECT name, version FROM dependencies ORDER BY position")
	if err != nil {
		return snap, false, fmt.Errorf("query dependencies: %w", err)
	}
	for depRows.Next() {
		var d workspace.Dependency
		if err := depRows.Scan(&d.Name, &d.Version); err != nil {
			depRows.Close()
			return snap, false, fmt.Errorf("scan dependency: %w", err)
		}
		deps.Add(d)
	}
	depRows.Close()
	if err := depRows.Err(); err != nil {
		return snap, false, err
	}

	var active string
	err = s.db.QueryRow("SELECT value FROM meta WHERE key = 'active'").Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, false, fmt.Errorf("query active document: %w", err)
	}

	return workspace.Snapshot{Files: files, Deps: deps, Active: active}, true, nil
}

// AppendMessage records one chat turn.
func (s *Store) AppendMessage(turn assist.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO messages (id, role, text, created_at) VALUES (?, ?, ?, ?)",
		turn.ID, string(turn.Role), turn.Text, turn.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Messages returns the most recent chat turns in chronological order.
// limit <= 0 returns all of them.
func (s *Store) Messages(limit int) ([]assist.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(tail("messages", "id, role, text, created_at"), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var turns []assist.Turn
	for rows.Next() {
		var t assist.Turn
		var role string
		var ts int64
		if err := rows.Scan(&t.ID, &role, &t.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		t.Role = assist.Role(role)
		t.Timestamp = time.Unix(0, ts)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ClearMessages deletes the chat history.
func (s *Store) ClearMessages() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM messages")
	return err
}

// AppendLog implements terminal.Journal.
func (s *Store) AppendLog(e terminal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO terminal_log (id, severity, message, created_at) VALUES (?, ?, ?, ?)",
		e.ID, string(e.Severity), e.Message, e.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// Logs returns the most recent terminal entries in order. limit <= 0
// returns all of them.
func (s *Store) Logs(limit int) ([]terminal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(tail("terminal_log", "id, severity, message, created_at"), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []terminal.Entry
	for rows.Next() {
		var e terminal.Entry
		var sev string
		var ts int64
		if err := rows.Scan(&e.ID, &sev, &e.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Severity = terminal.Severity(sev)
		e.Timestamp = time.Unix(0, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearLogs implements terminal.Journal.
func (s *Store) ClearLogs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM terminal_log")
	return err
}

// tail selects the last N rows of table in insertion order. A negative
// LIMIT means no limit in SQLite.
func tail(table, cols string) string {
	return fmt.Sprintf(
		"SELECT %s FROM (SELECT seq, %s FROM %s ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC",
		cols, cols, table,
	)
}

func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
