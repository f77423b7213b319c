// Package sqlite provides the SQLite implementation of chatstore.Store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-node deployments. Profiles are stored as JSON blobs in a TEXT
// column; chat turns live in an append-only table ordered by autoincrement id.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stanchat/convomem-go/pkg/chatstore"
)

// Store implements chatstore.Store using SQLite as the backend.
type Store struct {
	db *sql.DB
}

// Config contains configuration for creating a SQLite chat store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewStore opens (or creates) the SQLite database at cfg.DBPath and ensures
// the schema exists. Schema creation is idempotent, so a benign race between
// two processes bootstrapping the same file resolves to the same tables.
func NewStore(cfg *Config) (*Store, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("chatstore/sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("chatstore/sqlite: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("chatstore/sqlite: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// initTables creates the users and chat_history tables if they do not exist.
func (s *Store) initTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			profile TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user_created
			ON chat_history(user_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("chatstore/sqlite: init tables: %w", err)
		}
	}
	return nil
}

// GetOrCreateProfile returns the user's profile, lazily creating an empty one.
//
// INSERT OR IGNORE makes creation race-safe: concurrent first contacts for the
// same user collapse onto the single row keyed by user_id.
func (s *Store) GetOrCreateProfile(ctx context.Context, userID string) (*chatstore.Profile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, profile, created_at, updated_at) VALUES (?, '{}', ?, ?)`,
		userID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("chatstore/sqlite: create profile: %w", err)
	}

	return s.getProfile(ctx, userID)
}

func (s *Store) getProfile(ctx context.Context, userID string) (*chatstore.Profile, error) {
	var (
		profileJSON string
		createdAt   time.Time
		updatedAt   time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT profile, created_at, updated_at FROM users WHERE user_id = ?`,
		userID,
	).Scan(&profileJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("chatstore/sqlite: get profile: %w", err)
	}

	facts := make(map[string]string)
	if profileJSON != "" {
		if err := json.Unmarshal([]byte(profileJSON), &facts); err != nil {
			return nil, fmt.Errorf("chatstore/sqlite: parse profile: %w", err)
		}
	}

	return &chatstore.Profile{
		UserID:    userID,
		Facts:     facts,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// UpdateProfile merges facts into the stored profile and writes the merged
// mapping back as one blob. Last writer wins under concurrent updates for the
// same user; partial merges are never persisted.
func (s *Store) UpdateProfile(ctx context.Context, userID string, facts map[string]string) error {
	profile, err := s.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return err
	}

	for k, v := range facts {
		profile.Facts[k] = v
	}

	merged, err := json.Marshal(profile.Facts)
	if err != nil {
		return fmt.Errorf("chatstore/sqlite: marshal profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET profile = ?, updated_at = ? WHERE user_id = ?`,
		string(merged), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("chatstore/sqlite: update profile: %w", err)
	}
	return nil
}

// AppendTurn appends one turn to the user's conversation log.
func (s *Store) AppendTurn(ctx context.Context, userID string, role chatstore.Role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, string(role), content, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("chatstore/sqlite: append turn: %w", err)
	}
	return nil
}

// RecentHistory returns at most limit most-recent turns in chronological order.
//
// Rows are fetched newest-first by autoincrement id (which is strictly
// monotonic even when timestamps collide) and reversed before returning.
func (s *Store) RecentHistory(ctx context.Context, userID string, limit int) ([]chatstore.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM chat_history
		 WHERE user_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("chatstore/sqlite: recent history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]chatstore.ChatTurn, 0, limit)
	for rows.Next() {
		var t chatstore.ChatTurn
		var role string
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("chatstore/sqlite: scan turn: %w", err)
		}
		t.Role = chatstore.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatstore/sqlite: iterate turns: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

// PurgeUser deletes all chat turns and the profile row for the user.
// Deleting rows that do not exist is a no-op, so the operation is idempotent.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_history WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("chatstore/sqlite: purge history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("chatstore/sqlite: purge profile: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
