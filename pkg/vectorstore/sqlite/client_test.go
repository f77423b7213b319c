package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanchat/convomem-go/pkg/vectorstore"
	sqliteStore "github.com/stanchat/convomem-go/pkg/vectorstore/sqlite"
)

func setupClient(t *testing.T) vectorstore.Store {
	t.Helper()

	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "vectors.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertRecord(t *testing.T, store vectorstore.Store, id int64, userID, text string, vector []float64) {
	t.Helper()
	err := store.Insert(context.Background(), &vectorstore.MemoryRecord{
		ID:        id,
		UserID:    userID,
		Text:      text,
		Vector:    vector,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestClient_SearchOrdersBySimilarity(t *testing.T) {
	store := setupClient(t)

	insertRecord(t, store, 1, "alex", "likes tea", []float64{1, 0, 0})
	insertRecord(t, store, 2, "alex", "plays chess", []float64{0, 1, 0})
	insertRecord(t, store, 3, "alex", "drinks coffee", []float64{0.9, 0.1, 0})

	results, err := store.Search(context.Background(), []float64{1, 0, 0}, &vectorstore.SearchOptions{
		UserID: "alex",
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "likes tea", results[0].Text)
	assert.Equal(t, "drinks coffee", results[1].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestClient_SearchFiltersByUser(t *testing.T) {
	store := setupClient(t)

	insertRecord(t, store, 1, "alex", "alex memory", []float64{1, 0, 0})
	insertRecord(t, store, 2, "blake", "blake memory", []float64{1, 0, 0})

	results, err := store.Search(context.Background(), []float64{1, 0, 0}, &vectorstore.SearchOptions{
		UserID: "alex",
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alex memory", results[0].Text)
}

func TestClient_SearchEmptyIndex(t *testing.T) {
	store := setupClient(t)

	results, err := store.Search(context.Background(), []float64{1, 0, 0}, &vectorstore.SearchOptions{
		UserID: "nobody",
		Limit:  5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_DeleteByUser(t *testing.T) {
	store := setupClient(t)
	ctx := context.Background()

	insertRecord(t, store, 1, "alex", "alex memory", []float64{1, 0, 0})
	insertRecord(t, store, 2, "blake", "blake memory", []float64{0, 1, 0})

	require.NoError(t, store.DeleteByUser(ctx, "alex"))

	results, err := store.Search(ctx, []float64{1, 0, 0}, &vectorstore.SearchOptions{
		UserID: "alex",
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Other users keep their records.
	results, err = store.Search(ctx, []float64{0, 1, 0}, &vectorstore.SearchOptions{
		UserID: "blake",
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// Deleting an absent user is a no-op.
	assert.NoError(t, store.DeleteByUser(ctx, "nobody"))
}
