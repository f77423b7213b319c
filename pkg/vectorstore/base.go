// Package vectorstore provides interfaces and types for semantic memory storage.
//
// It defines the Store interface that all vector storage implementations must
// satisfy: an append-only collection of embedded text snippets owned by users,
// queryable by nearest-neighbor search with a mandatory user filter.
package vectorstore

import (
	"context"
	"time"
)

// MemoryRecord is one embedded text snippet in the semantic index.
//
// Records are append-only: they are never mutated and are deleted only when
// the owning user is purged.
type MemoryRecord struct {
	// ID is the unique identifier of the record.
	ID int64

	// UserID identifies the user who owns this record. Every search is
	// filtered by exact user id equality; records must never leak across
	// that filter.
	UserID string

	// Text is the remembered snippet.
	Text string

	// Vector is the embedding of Text. Its dimension is fixed by the
	// embedding provider's contract.
	Vector []float64

	// CreatedAt is when the record was stored.
	CreatedAt time.Time

	// Score is the similarity score filled in by search operations
	// (higher is more similar). Zero outside of search results.
	Score float64
}

// SearchOptions contains options for nearest-neighbor searches.
type SearchOptions struct {
	// UserID restricts results to records owned by this user. Required:
	// implementations must apply it before or along with distance ranking.
	UserID string

	// Limit is the maximum number of results to return.
	Limit int
}

// Store defines the interface for semantic memory storage backends.
//
// The backing collection is ensured idempotently when a store is constructed,
// so a search against a deployment that has never stored a record returns an
// empty result rather than an error. The similarity metric is cosine for all
// implementations, consistent between store and query sides.
type Store interface {
	// Insert appends one record to the index.
	Insert(ctx context.Context, record *MemoryRecord) error

	// Search returns the records closest to the query vector, most similar
	// first, restricted to opts.UserID and bounded by opts.Limit. An index
	// with no records for the user yields an empty slice.
	Search(ctx context.Context, vector []float64, opts *SearchOptions) ([]*MemoryRecord, error)

	// DeleteByUser removes every record owned by the user. A user with no
	// records (or a collection that was never written) is treated as
	// already empty.
	DeleteByUser(ctx context.Context, userID string) error

	// Close closes the store and releases resources.
	Close() error
}
