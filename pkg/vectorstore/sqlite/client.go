// Package sqlite provides the SQLite implementation of vectorstore.Store.
//
// SQLite has no native vector operations, so embeddings are stored as JSON
// strings in TEXT columns and similarity is computed in memory with cosine
// similarity over the user's records. That keeps the backend dependency-free
// and is fast enough for per-user memory collections.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stanchat/convomem-go/pkg/vectorstore"
)

// Client implements vectorstore.Store using SQLite as the backend.
type Client struct {
	db             *sql.DB
	collectionName string
}

// Config contains configuration for creating a SQLite vector store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CollectionName is the table used for memory records
	// (default: "user_memories").
	CollectionName string
}

// NewClient opens the SQLite database and ensures the collection table exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.CollectionName == "" {
		cfg.CollectionName = "user_memories"
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("vectorstore/sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("vectorstore/sqlite: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("vectorstore/sqlite: ping: %w", err)
	}

	c := &Client{db: db, collectionName: cfg.CollectionName}
	if err := c.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`, c.collectionName)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("vectorstore/sqlite: init tables: %w", err)
	}

	indexQuery := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id)`,
		c.collectionName, c.collectionName,
	)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("vectorstore/sqlite: init index: %w", err)
	}

	return nil
}

// Insert appends one record, storing its vector as a JSON string.
func (c *Client) Insert(ctx context.Context, record *vectorstore.MemoryRecord) error {
	embeddingJSON, err := json.Marshal(record.Vector)
	if err != nil {
		return fmt.Errorf("vectorstore/sqlite: marshal embedding: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, user_id, text, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.collectionName,
	)
	_, err = c.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Text, string(embeddingJSON), createdAt,
	)
	if err != nil {
		return fmt.Errorf("vectorstore/sqlite: insert: %w", err)
	}
	return nil
}

// Search loads the user's records and ranks them by cosine similarity.
// The user filter is applied in SQL before any distance computation.
func (c *Client) Search(ctx context.Context, vector []float64, opts *vectorstore.SearchOptions) ([]*vectorstore.MemoryRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, user_id, text, embedding, created_at FROM %s WHERE user_id = ?`,
		c.collectionName,
	)

	rows, err := c.db.QueryContext(ctx, query, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/sqlite: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*vectorstore.MemoryRecord
	for rows.Next() {
		var (
			r            vectorstore.MemoryRecord
			embeddingStr string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &embeddingStr, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("vectorstore/sqlite: scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingStr), &r.Vector); err != nil {
			return nil, fmt.Errorf("vectorstore/sqlite: parse embedding: %w", err)
		}
		r.Score = cosineSimilarity(vector, r.Vector)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore/sqlite: iterate records: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})

	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}

// DeleteByUser removes every record owned by the user.
func (c *Client) DeleteByUser(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, c.collectionName)
	if _, err := c.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("vectorstore/sqlite: delete by user: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// cosineSimilarity returns the cosine similarity of two vectors, or 0 when the
// dimensions disagree or either vector has zero norm.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
