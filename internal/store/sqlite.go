package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ghostbot/internal/logging"
	"ghostbot/internal/types"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps contexts in a single user_contexts table.
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string
	loc    *time.Location
}

// NewSQLiteBackend opens (and creates if needed) the database at path.
// ":memory:" is accepted for tests.
func NewSQLiteBackend(path string, loc *time.Location) (*SQLiteBackend, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteBackend")
	defer timer.Stop()

	logging.Store("Initializing SQLite context store at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
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

	if loc == nil {
		loc = time.Local
	}
	b := &SQLiteBackend{db: db, dbPath: path, loc: loc}
	if err := b.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) initialize() error {
	_, err := b.db.Exec(`
	CREATE TABLE IF NOT EXISTS user_contexts (
		user_id INTEGER PRIMARY KEY,
		history_json TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		active_session_name TEXT,
		session_files_json TEXT
	);`)
	if err != nil {
		return fmt.Errorf("failed to create user_contexts: %w", err)
	}
	return nil
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, userID int64) (*types.ConversationState, error) {
	var (
		historyJSON string
		timestamp   string
		sessionName sql.NullString
		filesJSON   sql.NullString
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT history_json, timestamp, active_session_name, session_files_json
		 FROM user_contexts WHERE user_id = ?`, userID,
	).Scan(&historyJSON, &timestamp, &sessionName, &filesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logging.StoreError("Failed to load context for user %d: %v", userID, err)
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	history, err := decodeHistory(historyJSON)
	if err != nil {
		return nil, err
	}
	files, err := decodeFiles(filesJSON.String)
	if err != nil {
		return nil, err
	}
	last, err := ParseTimestamp(timestamp, b.loc)
	if err != nil {
		return nil, err
	}
	var name *string
	if sessionName.Valid {
		name = types.StringPtr(sessionName.String)
	}
	return newState(userID, history, last, name, files), nil
}

// Upsert implements Backend.
func (b *SQLiteBackend) Upsert(ctx context.Context, state *types.ConversationState) error {
	historyJSON, err := encodeHistory(state.History)
	if err != nil {
		return err
	}
	filesJSON, err := encodeFiles(state.SessionFiles)
	if err != nil {
		return err
	}
	var name sql.NullString
	if state.HasSession() {
		name = sql.NullString{String: state.SessionName(), Valid: true}
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO user_contexts (user_id, history_json, timestamp, active_session_name, session_files_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			history_json = excluded.history_json,
			timestamp = excluded.timestamp,
			active_session_name = excluded.active_session_name,
			session_files_json = excluded.session_files_json`,
		state.UserID, historyJSON, FormatTimestamp(state.LastActivity, b.loc), name, filesJSON,
	)
	if err != nil {
		logging.StoreError("Failed to save context for user %d: %v", state.UserID, err)
		return fmt.Errorf("failed to save context: %w", err)
	}
	logging.StoreDebug("Saved context for user %d (%d turns, %d files)", state.UserID, len(state.History), len(state.SessionFiles))
	return nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, userID int64) (bool, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM user_contexts WHERE user_id = ?", userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete context: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
