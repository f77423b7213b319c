// Package embedder provides interfaces for text embedding providers.
//
// It defines the Provider interface that all embedding implementations must
// satisfy. Embedding failures (timeouts, quota, malformed input) surface as
// ordinary errors; callers treat a failed embedding as "no embedding
// available" and degrade rather than abort.
package embedder

import "context"

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts into vector embeddings in one
	// request. The result order matches the input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the fixed dimension of vectors produced by this
	// provider. Every stored memory record's vector has this dimension.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
