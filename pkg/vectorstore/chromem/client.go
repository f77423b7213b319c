// Package chromem provides an embedded, pure-Go implementation of
// vectorstore.Store backed by chromem-go. It needs no external database
// process: records live in memory and can optionally be persisted to disk.
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/stanchat/convomem-go/pkg/vectorstore"
)

const (
	metaUserID    = "user_id"
	metaCreatedAt = "created_at"
	metaRecordID  = "record_id"
)

// Client implements vectorstore.Store using a chromem-go collection.
type Client struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Config contains configuration for creating a chromem vector store.
type Config struct {
	// Path is the directory used for persistence. Empty means in-memory only.
	Path string

	// CollectionName is the chromem collection used for memory records
	// (default: "user_memories").
	CollectionName string
}

// NewClient creates the chromem database and ensures the collection exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.CollectionName == "" {
		cfg.CollectionName = "user_memories"
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("vectorstore/chromem: open: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are always supplied by the caller, so no embedding
	// function is configured on the collection.
	col, err := db.GetOrCreateCollection(cfg.CollectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/chromem: create collection: %w", err)
	}

	return &Client{db: db, collection: col}, nil
}

// Insert appends one record as a chromem document.
func (c *Client) Insert(ctx context.Context, record *vectorstore.MemoryRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	docID := uuid.NewString()
	if record.ID != 0 {
		docID = strconv.FormatInt(record.ID, 10)
	}

	doc := chromem.Document{
		ID:        docID,
		Content:   record.Text,
		Embedding: toFloat32(record.Vector),
		Metadata: map[string]string{
			metaUserID:    record.UserID,
			metaCreatedAt: createdAt.Format(time.RFC3339Nano),
			metaRecordID:  strconv.FormatInt(record.ID, 10),
		},
	}

	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("vectorstore/chromem: add document: %w", err)
	}
	return nil
}

// Search queries the collection with a metadata filter on the user id.
//
// chromem rejects result counts larger than the number of matching documents,
// a count that is not observable up front. The query is retried with shrinking
// limits until it fits; a collection with no matching documents yields an
// empty result rather than an error.
func (c *Client) Search(ctx context.Context, vector []float64, opts *vectorstore.SearchOptions) ([]*vectorstore.MemoryRecord, error) {
	limit := opts.Limit
	if count := c.collection.Count(); count < limit {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	where := map[string]string{metaUserID: opts.UserID}
	query := toFloat32(vector)

	var results []chromem.Result
	for ; limit >= 1; limit-- {
		var err error
		results, err = c.collection.QueryEmbedding(ctx, query, limit, where, nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("vectorstore/chromem: query: %w", err)
	}

	records := make([]*vectorstore.MemoryRecord, 0, len(results))
	for _, res := range results {
		r := &vectorstore.MemoryRecord{
			UserID: res.Metadata[metaUserID],
			Text:   res.Content,
			Vector: toFloat64(res.Embedding),
			Score:  float64(res.Similarity),
		}
		if id, err := strconv.ParseInt(res.Metadata[metaRecordID], 10, 64); err == nil {
			r.ID = id
		}
		if ts, err := time.Parse(time.RFC3339Nano, res.Metadata[metaCreatedAt]); err == nil {
			r.CreatedAt = ts
		}
		records = append(records, r)
	}
	return records, nil
}

// DeleteByUser removes every document whose user_id metadata matches.
func (c *Client) DeleteByUser(ctx context.Context, userID string) error {
	where := map[string]string{metaUserID: userID}
	if err := c.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("vectorstore/chromem: delete by user: %w", err)
	}
	return nil
}

// Close is a no-op: chromem holds no external resources beyond optional
// persistence files that are flushed on every write.
func (c *Client) Close() error {
	return nil
}

// isTooFewDocsError matches chromem's complaint when nResults exceeds the
// number of documents passing the filter.
func isTooFewDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
