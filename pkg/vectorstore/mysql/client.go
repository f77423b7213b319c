// Package mysql provides the MySQL implementation of vectorstore.Store.
//
// Stock MySQL has no vector type, so embeddings are stored as JSON strings in
// a TEXT column and similarity is computed in memory, the same strategy as the
// SQLite backend. The backend exists for deployments that already run MySQL
// (or a MySQL-compatible database) for their other storage.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/stanchat/convomem-go/pkg/vectorstore"
)

// Client implements vectorstore.Store using MySQL as the backend.
type Client struct {
	db             *sql.DB
	collectionName string
}

// Config contains MySQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	// CollectionName is the table used for memory records
	// (default: "user_memories").
	CollectionName string
}

// NewClient connects to MySQL and ensures the collection table exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.CollectionName == "" {
		cfg.CollectionName = "user_memories"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/mysql: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("vectorstore/mysql: ping: %w", err)
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
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			text LONGTEXT NOT NULL,
			embedding LONGTEXT NOT NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_user (user_id)
		)
	`, c.collectionName)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("vectorstore/mysql: init tables: %w", err)
	}
	return nil
}

// Insert appends one record, storing its vector as a JSON string.
func (c *Client) Insert(ctx context.Context, record *vectorstore.MemoryRecord) error {
	embeddingJSON, err := json.Marshal(record.Vector)
	if err != nil {
		return fmt.Errorf("vectorstore/mysql: marshal embedding: %w", err)
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
		return fmt.Errorf("vectorstore/mysql: insert: %w", err)
	}
	return nil
}

// Search loads the user's records and ranks them by cosine similarity.
func (c *Client) Search(ctx context.Context, vector []float64, opts *vectorstore.SearchOptions) ([]*vectorstore.MemoryRecord, error) {
	query := fmt.Sprintf(
		`SELECT id, user_id, text, embedding, created_at FROM %s WHERE user_id = ?`,
		c.collectionName,
	)

	rows, err := c.db.QueryContext(ctx, query, opts.UserID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/mysql: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*vectorstore.MemoryRecord
	for rows.Next() {
		var (
			r            vectorstore.MemoryRecord
			embeddingStr string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &embeddingStr, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("vectorstore/mysql: scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingStr), &r.Vector); err != nil {
			return nil, fmt.Errorf("vectorstore/mysql: parse embedding: %w", err)
		}
		r.Score = cosineSimilarity(vector, r.Vector)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore/mysql: iterate records: %w", err)
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
		return fmt.Errorf("vectorstore/mysql: delete by user: %w", err)
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
