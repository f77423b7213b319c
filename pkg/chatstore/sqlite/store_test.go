package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanchat/convomem-go/pkg/chatstore"
	sqliteStore "github.com/stanchat/convomem-go/pkg/chatstore/sqlite"
)

func setupStore(t *testing.T) chatstore.Store {
	t.Helper()

	store, err := sqliteStore.NewStore(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "chat.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_GetOrCreateProfile(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	profile, err := store.GetOrCreateProfile(ctx, "alex")
	require.NoError(t, err)
	assert.Equal(t, "alex", profile.UserID)
	assert.Empty(t, profile.Facts)

	// Second call returns the same profile, not a duplicate.
	again, err := store.GetOrCreateProfile(ctx, "alex")
	require.NoError(t, err)
	assert.Equal(t, profile.UserID, again.UserID)
}

func TestStore_UpdateProfileMerges(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.UpdateProfile(ctx, "alex", map[string]string{
		"name": "Alex",
		"city": "Lisbon",
	})
	require.NoError(t, err)

	err = store.UpdateProfile(ctx, "alex", map[string]string{
		"city":  "Porto",
		"hobby": "climbing",
	})
	require.NoError(t, err)

	profile, err := store.GetOrCreateProfile(ctx, "alex")
	require.NoError(t, err)
	assert.Equal(t, "Alex", profile.Facts["name"])
	assert.Equal(t, "Porto", profile.Facts["city"])
	assert.Equal(t, "climbing", profile.Facts["hobby"])
}

func TestStore_UpdateProfileCreatesUser(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	err := store.UpdateProfile(ctx, "fresh", map[string]string{"name": "Sam"})
	require.NoError(t, err)

	profile, err := store.GetOrCreateProfile(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "Sam", profile.Facts["name"])
}

func TestStore_RecentHistoryOrderAndLimit(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		role := chatstore.RoleUser
		if i%2 == 1 {
			role = chatstore.RoleAssistant
		}
		err := store.AppendTurn(ctx, "alex", role, fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}

	history, err := store.RecentHistory(ctx, "alex", 4)
	require.NoError(t, err)
	require.Len(t, history, 4)

	// The window is the most recent turns, returned oldest first.
	assert.Equal(t, "turn 6", history[0].Content)
	assert.Equal(t, "turn 9", history[3].Content)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].ID, history[i-1].ID)
	}
}

func TestStore_RecentHistoryEmptyUser(t *testing.T) {
	store := setupStore(t)

	history, err := store.RecentHistory(context.Background(), "nobody", 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_HistoryIsolatedPerUser(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTurn(ctx, "alex", chatstore.RoleUser, "hi from alex"))
	require.NoError(t, store.AppendTurn(ctx, "blake", chatstore.RoleUser, "hi from blake"))

	history, err := store.RecentHistory(ctx, "alex", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi from alex", history[0].Content)
}

func TestStore_PurgeUser(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpdateProfile(ctx, "alex", map[string]string{"name": "Alex"}))
	require.NoError(t, store.AppendTurn(ctx, "alex", chatstore.RoleUser, "hello"))

	require.NoError(t, store.PurgeUser(ctx, "alex"))

	history, err := store.RecentHistory(ctx, "alex", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	profile, err := store.GetOrCreateProfile(ctx, "alex")
	require.NoError(t, err)
	assert.Empty(t, profile.Facts)

	// Purging again is a no-op.
	assert.NoError(t, store.PurgeUser(ctx, "alex"))
}
