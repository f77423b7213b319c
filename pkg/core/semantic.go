package core

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/stanchat/convomem-go/pkg/embedder"
	"github.com/stanchat/convomem-go/pkg/observability"
	"github.com/stanchat/convomem-go/pkg/vectorstore"
)

// SemanticIndex pairs an embedding provider with a vector store and exposes
// the write and similarity-read paths of long-term memory.
//
// All reads and writes are scoped to a single user. Failures on the read path
// degrade to empty results instead of propagating; the engine decides how to
// surface write failures.
type SemanticIndex struct {
	store    vectorstore.Store
	embedder embedder.Provider
	node     *snowflake.Node
	logger   *zap.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
}

// NewSemanticIndex creates a semantic index over the given store and
// embedding provider. timeout bounds each embedding or store sub-call.
// metrics may be nil.
func NewSemanticIndex(store vectorstore.Store, emb embedder.Provider, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) (*SemanticIndex, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewEngineError("semantic.init", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &SemanticIndex{
		store:    store,
		embedder: emb,
		node:     node,
		logger:   logger,
		metrics:  metrics,
		timeout:  timeout,
	}, nil
}

// Remember embeds text and stores it as a memory record for userID.
//
// An embedding failure skips the write and returns an error wrapping
// ErrEmbedding; a store failure returns an error wrapping ErrIndex. Callers
// treat both as non-fatal to the surrounding turn.
func (s *SemanticIndex) Remember(ctx context.Context, userID, text string) error {
	ectx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vector, err := s.embedder.Embed(ectx, text)
	if err != nil {
		s.logger.Warn("embedding failed, memory not stored",
			zap.String("user_id", userID),
			zap.Error(err))
		s.metrics.CountRememberFailure()
		return NewEngineError("semantic.remember", wrapSentinel(ErrEmbedding, err))
	}

	record := &vectorstore.MemoryRecord{
		ID:        s.node.Generate().Int64(),
		UserID:    userID,
		Text:      text,
		Vector:    vector,
		CreatedAt: time.Now(),
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Insert(sctx, record); err != nil {
		s.logger.Warn("vector store insert failed",
			zap.String("user_id", userID),
			zap.Error(err))
		s.metrics.CountRememberFailure()
		return NewEngineError("semantic.remember", wrapSentinel(ErrIndex, err))
	}

	return nil
}

// Recall returns up to limit memory texts for userID most similar to query,
// most similar first. Embedding or search failures degrade to an empty
// slice; the degradation is logged and counted, never propagated.
func (s *SemanticIndex) Recall(ctx context.Context, userID, query string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	ectx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vector, err := s.embedder.Embed(ectx, query)
	if err != nil {
		s.logger.Warn("embedding failed, recall degraded",
			zap.String("user_id", userID),
			zap.Error(err))
		s.metrics.CountRecallDegraded("embedding")
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.store.Search(sctx, vector, &vectorstore.SearchOptions{
		UserID: userID,
		Limit:  limit,
	})
	if err != nil {
		s.logger.Warn("vector search failed, recall degraded",
			zap.String("user_id", userID),
			zap.Error(err))
		s.metrics.CountRecallDegraded("index")
		return nil
	}

	texts := make([]string, 0, len(records))
	for _, r := range records {
		texts = append(texts, r.Text)
	}
	return texts
}

// PurgeUser removes every memory record for userID.
func (s *SemanticIndex) PurgeUser(ctx context.Context, userID string) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return NewEngineError("semantic.purge", wrapSentinel(ErrIndex, err))
	}
	return nil
}

// Close releases the underlying store and embedding provider.
func (s *SemanticIndex) Close() error {
	var firstErr error
	if err := s.store.Close(); err != nil {
		firstErr = err
	}
	if err := s.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
