// ABOUTME: SQLite-backed local preferences using modernc.org/sqlite
// ABOUTME: Remembers the chosen language and the last active conversation between runs

package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Preference keys
const (
	KeyLanguage         = "language"
	KeyLastConversation = "last_conversation_id"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("preference not found")

// Store persists small string preferences.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the preferences database at path.
// Parent directories are created if needed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "prefs")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("preferences opened", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS preferences (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading preference %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting preference %s: %w", key, err)
	}
	return nil
}

// Language returns the remembered language code, or "" when none is stored.
func (s *Store) Language(ctx context.Context) (string, error) {
	return s.getOptional(ctx, KeyLanguage)
}

// SetLanguage remembers the language code.
func (s *Store) SetLanguage(ctx context.Context, lang string) error {
	return s.Set(ctx, KeyLanguage, lang)
}

// LastConversation returns the remembered conversation id, or "".
func (s *Store) LastConversation(ctx context.Context) (string, error) {
	return s.getOptional(ctx, KeyLastConversation)
}

// SetLastConversation remembers id; an empty id forgets it.
func (s *Store) SetLastConversation(ctx context.Context, id string) error {
	if id == "" {
		return s.Delete(ctx, KeyLastConversation)
	}
	return s.Set(ctx, KeyLastConversation, id)
}

// ForgetConversation clears the remembered conversation only if it is id.
func (s *Store) ForgetConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ? AND value = ?`, KeyLastConversation, id)
	if err != nil {
		return fmt.Errorf("forgetting conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) getOptional(ctx context.Context, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
