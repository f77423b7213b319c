package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanchat/convomem-go/pkg/core"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.ChatStore.Provider)
	assert.Equal(t, "sqlite", cfg.VectorStore.Provider)
	assert.Equal(t, "user_memories", cfg.VectorStore.CollectionName)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, 1536, cfg.Embedder.Dimensions)
	assert.Equal(t, 200, cfg.Memory.HistoryLimit)
	assert.Equal(t, 3, cfg.Memory.TopK)
	assert.Equal(t, 5*time.Second, cfg.Memory.RecallTimeout)
	assert.False(t, cfg.Memory.AutoRemember)
	assert.Equal(t, ":8080", cfg.Server.BindAddr)
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("CHAT_STORE_PROVIDER", "postgres")
	t.Setenv("VECTOR_STORE_PROVIDER", "chromem")
	t.Setenv("MEMORY_HISTORY_LIMIT", "50")
	t.Setenv("MEMORY_TOP_K", "7")
	t.Setenv("MEMORY_RECALL_TIMEOUT", "2s")
	t.Setenv("MEMORY_AUTO_REMEMBER", "true")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6432")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.ChatStore.Provider)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 50, cfg.Memory.HistoryLimit)
	assert.Equal(t, 7, cfg.Memory.TopK)
	assert.Equal(t, 2*time.Second, cfg.Memory.RecallTimeout)
	assert.True(t, cfg.Memory.AutoRemember)
	assert.Equal(t, "db.internal", cfg.ChatStore.Postgres.Host)
	assert.Equal(t, 6432, cfg.ChatStore.Postgres.Port)
}

func TestLoadConfigFromEnv_InvalidNumber(t *testing.T) {
	t.Setenv("MEMORY_TOP_K", "three")

	_, err := core.LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := testConfig()
	assert.NoError(t, cfg.Validate())

	for name, mutate := range map[string]func(*core.Config){
		"unknown chat store":   func(c *core.Config) { c.ChatStore.Provider = "redis" },
		"unknown vector store": func(c *core.Config) { c.VectorStore.Provider = "pinecone" },
		"unknown embedder":     func(c *core.Config) { c.Embedder.Provider = "none" },
		"unknown llm":          func(c *core.Config) { c.LLM.Provider = "none" },
		"zero dimensions":      func(c *core.Config) { c.Embedder.Dimensions = 0 },
		"zero history limit":   func(c *core.Config) { c.Memory.HistoryLimit = 0 },
		"negative top-k":       func(c *core.Config) { c.Memory.TopK = -1 },
		"zero recall timeout":  func(c *core.Config) { c.Memory.RecallTimeout = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
