package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanchat/convomem-go/pkg/core"
)

func newTestIndex(t *testing.T, emb *fakeEmbedder) *core.SemanticIndex {
	t.Helper()

	_, vectors := newTestStores(t)
	index, err := core.NewSemanticIndex(vectors, emb, 5*time.Second, nil, nil)
	require.NoError(t, err)
	return index
}

func TestSemanticIndex_RememberAndRecall(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"I love hiking":         {1, 0, 0},
		"My cat is named Mochi": {0, 1, 0},
		"what outdoor stuff do I like?": {0.9, 0.1, 0},
	}}
	index := newTestIndex(t, emb)
	ctx := context.Background()

	require.NoError(t, index.Remember(ctx, "alex", "I love hiking"))
	require.NoError(t, index.Remember(ctx, "alex", "My cat is named Mochi"))

	memories := index.Recall(ctx, "alex", "what outdoor stuff do I like?", 1)
	require.Len(t, memories, 1)
	assert.Equal(t, "I love hiking", memories[0])
}

func TestSemanticIndex_RecallScopedToUser(t *testing.T) {
	index := newTestIndex(t, &fakeEmbedder{})
	ctx := context.Background()

	require.NoError(t, index.Remember(ctx, "alex", "alex fact"))

	memories := index.Recall(ctx, "blake", "anything", 5)
	assert.Empty(t, memories)
}

func TestSemanticIndex_RememberEmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{}
	index := newTestIndex(t, emb)
	ctx := context.Background()

	emb.fail = true
	err := index.Remember(ctx, "alex", "this will not be stored")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbedding)

	// Nothing was written: a later recall finds no trace of it.
	emb.fail = false
	memories := index.Recall(ctx, "alex", "this will not be stored", 5)
	assert.Empty(t, memories)
}

func TestSemanticIndex_RecallDegradesOnEmbedFailure(t *testing.T) {
	emb := &fakeEmbedder{}
	index := newTestIndex(t, emb)
	ctx := context.Background()

	require.NoError(t, index.Remember(ctx, "alex", "a stored memory"))

	emb.fail = true
	memories := index.Recall(ctx, "alex", "anything", 5)
	assert.Empty(t, memories)
}

func TestSemanticIndex_PurgeUser(t *testing.T) {
	index := newTestIndex(t, &fakeEmbedder{})
	ctx := context.Background()

	require.NoError(t, index.Remember(ctx, "alex", "a stored memory"))
	require.NoError(t, index.PurgeUser(ctx, "alex"))

	assert.Empty(t, index.Recall(ctx, "alex", "a stored memory", 5))

	// Idempotent for unknown users.
	assert.NoError(t, index.PurgeUser(ctx, "nobody"))
}
