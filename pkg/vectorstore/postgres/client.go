// Package postgres provides the PostgreSQL + pgvector implementation of
// vectorstore.Store. Similarity search runs inside the database using
// pgvector's cosine distance operator.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/stanchat/convomem-go/pkg/vectorstore"
)

// Client implements vectorstore.Store using PostgreSQL with pgvector.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// CollectionName is the table used for memory records
	// (default: "user_memories").
	CollectionName string

	// EmbeddingModelDims is the dimension of stored vectors.
	EmbeddingModelDims int
}

// NewClient connects to PostgreSQL, enables the pgvector extension, and
// ensures the collection table exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.CollectionName == "" {
		cfg.CollectionName = "user_memories"
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/postgres: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("vectorstore/postgres: ping: %w", err)
	}

	c := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		dimensions:     cfg.EmbeddingModelDims,
	}
	if err := c.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("vectorstore/postgres: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, c.collectionName, c.dimensions)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("vectorstore/postgres: init tables: %w", err)
	}

	indexQuery := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s (user_id)`,
		c.collectionName, c.collectionName,
	)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("vectorstore/postgres: init index: %w", err)
	}

	return nil
}

// Insert appends one record.
func (c *Client) Insert(ctx context.Context, record *vectorstore.MemoryRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, user_id, text, embedding, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.collectionName,
	)
	_, err := c.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Text, vectorToString(record.Vector), createdAt,
	)
	if err != nil {
		return fmt.Errorf("vectorstore/postgres: insert: %w", err)
	}
	return nil
}

// Search ranks the user's records by pgvector cosine distance. The <=>
// operator returns cosine distance, so similarity is 1 - distance.
func (c *Client) Search(ctx context.Context, vector []float64, opts *vectorstore.SearchOptions) ([]*vectorstore.MemoryRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, text, embedding, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE user_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, c.collectionName)

	rows, err := c.db.QueryContext(ctx, query, vectorToString(vector), opts.UserID, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/postgres: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*vectorstore.MemoryRecord
	for rows.Next() {
		var (
			r            vectorstore.MemoryRecord
			embeddingStr string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &embeddingStr, &r.CreatedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("vectorstore/postgres: scan record: %w", err)
		}
		r.Vector, err = parseVectorString(embeddingStr)
		if err != nil {
			return nil, fmt.Errorf("vectorstore/postgres: parse embedding: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore/postgres: iterate records: %w", err)
	}

	return records, nil
}

// DeleteByUser removes every record owned by the user.
func (c *Client) DeleteByUser(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, c.collectionName)
	if _, err := c.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("vectorstore/postgres: delete by user: %w", err)
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

// vectorToString converts a vector to pgvector's literal format: "[v1,v2,...]".
func vectorToString(vector []float64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVectorString parses pgvector's literal format back into a vector.
func parseVectorString(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	vector := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		vector[i] = v
	}
	return vector, nil
}
