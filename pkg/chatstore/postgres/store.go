// Package postgres provides the PostgreSQL implementation of chatstore.Store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/stanchat/convomem-go/pkg/chatstore"
)

// Store implements chatstore.Store using PostgreSQL as the backend.
type Store struct {
	db *sql.DB
}

// Config contains PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewStore connects to PostgreSQL and ensures the schema exists.
func NewStore(cfg *Config) (*Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("chatstore/postgres: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("chatstore/postgres: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(255) PRIMARY KEY,
			profile TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user_created
			ON chat_history (user_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("chatstore/postgres: init tables: %w", err)
		}
	}
	return nil
}

// GetOrCreateProfile returns the user's profile, lazily creating an empty one.
// ON CONFLICT DO NOTHING keeps concurrent first contacts race-safe.
func (s *Store) GetOrCreateProfile(ctx context.Context, userID string) (*chatstore.Profile, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, profile, created_at, updated_at)
		 VALUES ($1, '{}', $2, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("chatstore/postgres: create profile: %w", err)
	}

	var (
		profileJSON string
		createdAt   time.Time
		updatedAt   time.Time
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT profile, created_at, updated_at FROM users WHERE user_id = $1`,
		userID,
	).Scan(&profileJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("chatstore/postgres: get profile: %w", err)
	}

	facts := make(map[string]string)
	if profileJSON != "" {
		if err := json.Unmarshal([]byte(profileJSON), &facts); err != nil {
			return nil, fmt.Errorf("chatstore/postgres: parse profile: %w", err)
		}
	}

	return &chatstore.Profile{
		UserID:    userID,
		Facts:     facts,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// UpdateProfile merges facts into the stored profile and writes back the whole
// blob. Last writer wins under concurrent updates for the same user.
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
		return fmt.Errorf("chatstore/postgres: marshal profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET profile = $1, updated_at = $2 WHERE user_id = $3`,
		string(merged), time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("chatstore/postgres: update profile: %w", err)
	}
	return nil
}

// AppendTurn appends one turn to the user's conversation log.
func (s *Store) AppendTurn(ctx context.Context, userID string, role chatstore.Role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		userID, string(role), content, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("chatstore/postgres: append turn: %w", err)
	}
	return nil
}

// RecentHistory returns at most limit most-recent turns in chronological order.
func (s *Store) RecentHistory(ctx context.Context, userID string, limit int) ([]chatstore.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM chat_history
		 WHERE user_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("chatstore/postgres: recent history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]chatstore.ChatTurn, 0, limit)
	for rows.Next() {
		var t chatstore.ChatTurn
		var role string
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("chatstore/postgres: scan turn: %w", err)
		}
		t.Role = chatstore.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatstore/postgres: iterate turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

// PurgeUser deletes all chat turns and the profile row for the user.
func (s *Store) PurgeUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_history WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("chatstore/postgres: purge history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("chatstore/postgres: purge profile: %w", err)
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
