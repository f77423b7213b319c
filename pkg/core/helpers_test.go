package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stanchat/convomem-go/pkg/chatstore"
	chatsqlite "github.com/stanchat/convomem-go/pkg/chatstore/sqlite"
	"github.com/stanchat/convomem-go/pkg/core"
	"github.com/stanchat/convomem-go/pkg/llm"
	"github.com/stanchat/convomem-go/pkg/vectorstore"
	vecsqlite "github.com/stanchat/convomem-go/pkg/vectorstore/sqlite"
)

// fakeEmbedder returns canned vectors per text, or [1,0,0] by default.
// Setting fail makes every call error.
type fakeEmbedder struct {
	vectors map[string][]float64
	fail    bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if f.fail {
		return nil, errors.New("embedding service unavailable")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Close() error    { return nil }

// stubGenerator returns a fixed reply or error and records the last
// conversation it was asked to complete.
type stubGenerator struct {
	reply        string
	err          error
	lastMessages []llm.Message
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (s *stubGenerator) GenerateWithMessages(_ context.Context, messages []llm.Message, _ ...llm.GenerateOption) (string, error) {
	s.lastMessages = messages
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubGenerator) Close() error { return nil }

func testConfig() *core.Config {
	return &core.Config{
		ChatStore:   core.ChatStoreConfig{Provider: "sqlite"},
		VectorStore: core.VectorStoreConfig{Provider: "sqlite"},
		Embedder:    core.EmbedderConfig{Provider: "openai", Dimensions: 3},
		LLM:         core.LLMConfig{Provider: "openai"},
		Memory: core.MemoryConfig{
			HistoryLimit:  200,
			TopK:          3,
			RecallTimeout: 5 * time.Second,
		},
	}
}

func newTestStores(t *testing.T) (chatstore.Store, vectorstore.Store) {
	t.Helper()
	dir := t.TempDir()

	chat, err := chatsqlite.NewStore(&chatsqlite.Config{
		DBPath: filepath.Join(dir, "chat.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = chat.Close() })

	vectors, err := vecsqlite.NewClient(&vecsqlite.Config{
		DBPath: filepath.Join(dir, "vectors.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	return chat, vectors
}

func newTestEngine(t *testing.T, emb *fakeEmbedder, gen *stubGenerator, mutate func(*core.Config)) *core.Engine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	chat, vectors := newTestStores(t)

	engine, err := core.NewEngine(cfg,
		core.WithChatStore(chat),
		core.WithVectorStore(vectors),
		core.WithEmbedder(emb),
		core.WithGenerator(gen),
	)
	require.NoError(t, err)
	return engine
}
