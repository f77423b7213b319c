package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanchat/convomem-go/pkg/chatstore"
	"github.com/stanchat/convomem-go/pkg/core"
)

func TestEngine_HandleTurnRecordsBothSides(t *testing.T) {
	gen := &stubGenerator{reply: "Nice to meet you, Alex!"}
	engine := newTestEngine(t, &fakeEmbedder{}, gen, nil)
	ctx := context.Background()

	reply, err := engine.HandleTurn(ctx, "alex", "My name is Alex")
	require.NoError(t, err)
	assert.Equal(t, "Nice to meet you, Alex!", reply)

	bundle, err := engine.AssembleContext(ctx, "alex", "anything")
	require.NoError(t, err)
	require.Len(t, bundle.History, 2)
	assert.Equal(t, chatstore.RoleUser, bundle.History[0].Role)
	assert.Equal(t, "My name is Alex", bundle.History[0].Content)
	assert.Equal(t, chatstore.RoleAssistant, bundle.History[1].Role)
	assert.Equal(t, "Nice to meet you, Alex!", bundle.History[1].Content)
}

func TestEngine_HandleTurnSendsHistoryToGenerator(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	engine := newTestEngine(t, &fakeEmbedder{}, gen, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "alex", "first message")
	require.NoError(t, err)
	_, err = engine.HandleTurn(ctx, "alex", "second message")
	require.NoError(t, err)

	// System prompt, two turns from the first exchange, current message.
	require.Len(t, gen.lastMessages, 4)
	assert.Equal(t, "system", gen.lastMessages[0].Role)
	assert.Equal(t, "first message", gen.lastMessages[1].Content)
	assert.Equal(t, "second message", gen.lastMessages[3].Content)
}

func TestEngine_HandleTurnFallbackOnGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream 500")}
	engine := newTestEngine(t, &fakeEmbedder{}, gen, nil)
	ctx := context.Background()

	reply, err := engine.HandleTurn(ctx, "alex", "hello?")
	require.NoError(t, err)
	assert.Equal(t, core.FallbackReply, reply)

	// The fallback is recorded like a normal assistant turn.
	bundle, err := engine.AssembleContext(ctx, "alex", "anything")
	require.NoError(t, err)
	require.Len(t, bundle.History, 2)
	assert.Equal(t, core.FallbackReply, bundle.History[1].Content)
}

func TestEngine_HandleTurnValidation(t *testing.T) {
	engine := newTestEngine(t, &fakeEmbedder{}, &stubGenerator{reply: "ok"}, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "", "hello")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = engine.HandleTurn(ctx, "alex", "   ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestEngine_HandleTurnSurvivesEmbedderOutage(t *testing.T) {
	emb := &fakeEmbedder{fail: true}
	gen := &stubGenerator{reply: "still here"}
	engine := newTestEngine(t, emb, gen, func(cfg *core.Config) {
		cfg.Memory.AutoRemember = true
	})

	reply, err := engine.HandleTurn(context.Background(), "alex", "remember me")
	require.NoError(t, err)
	assert.Equal(t, "still here", reply)
}

func TestEngine_HandleTurnHistoryLimit(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	engine := newTestEngine(t, &fakeEmbedder{}, gen, func(cfg *core.Config) {
		cfg.Memory.HistoryLimit = 2
	})
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		_, err := engine.HandleTurn(ctx, "alex", msg)
		require.NoError(t, err)
	}

	bundle, err := engine.AssembleContext(ctx, "alex", "anything")
	require.NoError(t, err)
	require.Len(t, bundle.History, 2)
	// The window holds the most recent turns only.
	assert.Equal(t, "three", bundle.History[0].Content)
	assert.Equal(t, "ok", bundle.History[1].Content)
}

func TestEngine_AssembleContextIncludesMemories(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"favorite color is green": {0, 1, 0},
		"what is my favorite color?": {0, 1, 0},
	}}
	engine := newTestEngine(t, emb, &stubGenerator{reply: "ok"}, nil)
	ctx := context.Background()

	require.NoError(t, engine.Remember(ctx, "alex", "favorite color is green"))

	bundle, err := engine.AssembleContext(ctx, "alex", "what is my favorite color?")
	require.NoError(t, err)
	require.Len(t, bundle.Memories, 1)
	assert.Equal(t, "favorite color is green", bundle.Memories[0])
}

func TestEngine_UpdateProfileFlowsIntoContext(t *testing.T) {
	engine := newTestEngine(t, &fakeEmbedder{}, &stubGenerator{reply: "ok"}, nil)
	ctx := context.Background()

	require.NoError(t, engine.UpdateProfile(ctx, "alex", map[string]string{"name": "Alex"}))

	bundle, err := engine.AssembleContext(ctx, "alex", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Alex", bundle.Profile["name"])
}

func TestEngine_PurgeUserClearsBothStores(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	engine := newTestEngine(t, &fakeEmbedder{}, gen, nil)
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "alex", "hello")
	require.NoError(t, err)
	require.NoError(t, engine.Remember(ctx, "alex", "a memory"))

	require.NoError(t, engine.PurgeUser(ctx, "alex"))

	bundle, err := engine.AssembleContext(ctx, "alex", "a memory")
	require.NoError(t, err)
	assert.Empty(t, bundle.History)
	assert.Empty(t, bundle.Memories)
	assert.Empty(t, bundle.Profile)

	// Unknown users purge cleanly.
	assert.NoError(t, engine.PurgeUser(ctx, "nobody"))

	// Blank user ids are rejected.
	assert.ErrorIs(t, engine.PurgeUser(ctx, "  "), core.ErrInvalidInput)
}

func TestEngine_RecordTurnRejectsUnknownRole(t *testing.T) {
	engine := newTestEngine(t, &fakeEmbedder{}, &stubGenerator{reply: "ok"}, nil)

	err := engine.RecordTurn(context.Background(), "alex", chatstore.Role("narrator"), "hm")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestEngine_ErrorMessagesCarryOperation(t *testing.T) {
	engine := newTestEngine(t, &fakeEmbedder{}, &stubGenerator{reply: "ok"}, nil)

	_, err := engine.HandleTurn(context.Background(), "", "hi")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "convomem: HandleTurn:"))
}
