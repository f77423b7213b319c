package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stanchat/convomem-go/pkg/chatstore"
	chatpostgres "github.com/stanchat/convomem-go/pkg/chatstore/postgres"
	chatsqlite "github.com/stanchat/convomem-go/pkg/chatstore/sqlite"
	"github.com/stanchat/convomem-go/pkg/embedder"
	embopenai "github.com/stanchat/convomem-go/pkg/embedder/openai"
	"github.com/stanchat/convomem-go/pkg/llm"
	llmollama "github.com/stanchat/convomem-go/pkg/llm/ollama"
	llmopenai "github.com/stanchat/convomem-go/pkg/llm/openai"
	"github.com/stanchat/convomem-go/pkg/observability"
	"github.com/stanchat/convomem-go/pkg/vectorstore"
	vecchromem "github.com/stanchat/convomem-go/pkg/vectorstore/chromem"
	vecmysql "github.com/stanchat/convomem-go/pkg/vectorstore/mysql"
	vecpostgres "github.com/stanchat/convomem-go/pkg/vectorstore/postgres"
	vecsqlite "github.com/stanchat/convomem-go/pkg/vectorstore/sqlite"
)

// Engine orchestrates the two memory stores and the generation provider into
// full conversational turns.
//
// An Engine is safe for concurrent use. Construct one with NewEngine and
// release it with Close.
type Engine struct {
	chat      chatstore.Store
	semantic  *SemanticIndex
	generator llm.Provider
	logger    *zap.Logger
	metrics   *observability.Metrics
	cfg       *Config
}

// Option customizes engine construction, primarily by injecting
// pre-constructed components in place of config-driven initialization.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithChatStore injects a structured store, skipping config-driven
// initialization of that component.
func WithChatStore(store chatstore.Store) Option {
	return func(e *Engine) { e.chat = store }
}

// WithVectorStore injects a vector store for the semantic index.
func WithVectorStore(store vectorstore.Store) Option {
	return func(e *Engine) {
		if e.semantic == nil {
			e.semantic = &SemanticIndex{}
		}
		e.semantic.store = store
	}
}

// WithEmbedder injects an embedding provider for the semantic index.
func WithEmbedder(provider embedder.Provider) Option {
	return func(e *Engine) {
		if e.semantic == nil {
			e.semantic = &SemanticIndex{}
		}
		e.semantic.embedder = provider
	}
}

// WithGenerator injects a generation provider.
func WithGenerator(provider llm.Provider) Option {
	return func(e *Engine) { e.generator = provider }
}

// WithMetrics sets the metrics collector. Defaults to none.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine from the configuration, constructing every
// component not supplied through options.
func NewEngine(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, NewEngineError("NewEngine", fmt.Errorf("%w: nil config", ErrInvalidInput))
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewEngineError("NewEngine", fmt.Errorf("%w: %w", ErrInvalidInput, err))
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}

	if e.chat == nil {
		store, err := initChatStore(cfg)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
		e.chat = store
	}

	// The semantic index may have been partially injected (store without
	// embedder or vice versa); fill whichever halves are missing.
	var vstore vectorstore.Store
	var emb embedder.Provider
	if e.semantic != nil {
		vstore = e.semantic.store
		emb = e.semantic.embedder
	}
	if vstore == nil {
		s, err := initVectorStore(cfg)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
		vstore = s
	}
	if emb == nil {
		p, err := initEmbedder(cfg)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
		emb = p
	}
	semantic, err := NewSemanticIndex(vstore, emb, cfg.Memory.RecallTimeout, e.logger, e.metrics)
	if err != nil {
		return nil, err
	}
	e.semantic = semantic

	if e.generator == nil {
		p, err := initLLM(cfg)
		if err != nil {
			return nil, NewEngineError("NewEngine", err)
		}
		e.generator = p
	}

	return e, nil
}

func initChatStore(cfg *Config) (chatstore.Store, error) {
	switch cfg.ChatStore.Provider {
	case "sqlite":
		return chatsqlite.NewStore(&chatsqlite.Config{
			DBPath: cfg.ChatStore.SQLite.DBPath,
		})
	case "postgres":
		return chatpostgres.NewStore(&chatpostgres.Config{
			Host:     cfg.ChatStore.Postgres.Host,
			Port:     cfg.ChatStore.Postgres.Port,
			User:     cfg.ChatStore.Postgres.User,
			Password: cfg.ChatStore.Postgres.Password,
			DBName:   cfg.ChatStore.Postgres.DBName,
			SSLMode:  cfg.ChatStore.Postgres.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unsupported chat store provider: %q", cfg.ChatStore.Provider)
	}
}

func initVectorStore(cfg *Config) (vectorstore.Store, error) {
	switch cfg.VectorStore.Provider {
	case "sqlite":
		return vecsqlite.NewClient(&vecsqlite.Config{
			DBPath:         cfg.VectorStore.SQLite.DBPath,
			CollectionName: cfg.VectorStore.CollectionName,
		})
	case "postgres":
		return vecpostgres.NewClient(&vecpostgres.Config{
			Host:               cfg.VectorStore.Postgres.Host,
			Port:               cfg.VectorStore.Postgres.Port,
			User:               cfg.VectorStore.Postgres.User,
			Password:           cfg.VectorStore.Postgres.Password,
			DBName:             cfg.VectorStore.Postgres.DBName,
			SSLMode:            cfg.VectorStore.Postgres.SSLMode,
			CollectionName:     cfg.VectorStore.CollectionName,
			EmbeddingModelDims: cfg.Embedder.Dimensions,
		})
	case "mysql":
		return vecmysql.NewClient(&vecmysql.Config{
			Host:           cfg.VectorStore.MySQL.Host,
			Port:           cfg.VectorStore.MySQL.Port,
			User:           cfg.VectorStore.MySQL.User,
			Password:       cfg.VectorStore.MySQL.Password,
			DBName:         cfg.VectorStore.MySQL.DBName,
			CollectionName: cfg.VectorStore.CollectionName,
		})
	case "chromem":
		return vecchromem.NewClient(&vecchromem.Config{
			Path:           cfg.VectorStore.Chromem.Path,
			CollectionName: cfg.VectorStore.CollectionName,
		})
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %q", cfg.VectorStore.Provider)
	}
}

func initEmbedder(cfg *Config) (embedder.Provider, error) {
	switch cfg.Embedder.Provider {
	case "openai":
		return embopenai.NewClient(&embopenai.Config{
			APIKey:     cfg.Embedder.APIKey,
			Model:      cfg.Embedder.Model,
			BaseURL:    cfg.Embedder.BaseURL,
			Dimensions: cfg.Embedder.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %q", cfg.Embedder.Provider)
	}
}

func initLLM(cfg *Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return llmopenai.NewClient(&llmopenai.Config{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
	case "ollama":
		return llmollama.NewClient(&llmollama.Config{
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.LLM.Provider)
	}
}

// validateTurnInput checks the caller-supplied identifiers for a turn.
func validateTurnInput(userID, message string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	return nil
}

// AssembleContext gathers everything known about the user that is relevant
// to message: the fact profile, the recent chat history bounded by the
// configured history limit, and the top-k semantically similar memories.
//
// Profile and history reads run concurrently and are required; a failure in
// either aborts with ErrPersistence. Semantic recall runs alongside them and
// is best-effort: on failure the bundle simply carries no memories.
func (e *Engine) AssembleContext(ctx context.Context, userID, message string) (*ContextBundle, error) {
	if err := validateTurnInput(userID, message); err != nil {
		return nil, NewEngineError("AssembleContext", err)
	}

	bundle := &ContextBundle{
		UserID:  userID,
		Message: message,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		profile, err := e.chat.GetOrCreateProfile(gctx, userID)
		if err != nil {
			return wrapSentinel(ErrPersistence, err)
		}
		bundle.Profile = profile.Facts
		return nil
	})

	g.Go(func() error {
		history, err := e.chat.RecentHistory(gctx, userID, e.cfg.Memory.HistoryLimit)
		if err != nil {
			return wrapSentinel(ErrPersistence, err)
		}
		bundle.History = history
		return nil
	})

	g.Go(func() error {
		// Recall degrades internally; it never fails the group.
		bundle.Memories = e.semantic.Recall(ctx, userID, message, e.cfg.Memory.TopK)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, NewEngineError("AssembleContext", err)
	}

	return bundle, nil
}

// RecordTurn appends one turn to the user's chat log.
func (e *Engine) RecordTurn(ctx context.Context, userID string, role chatstore.Role, content string) error {
	if err := validateTurnInput(userID, content); err != nil {
		return NewEngineError("RecordTurn", err)
	}
	if !role.Valid() {
		return NewEngineError("RecordTurn", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role))
	}
	if err := e.chat.AppendTurn(ctx, userID, role, content); err != nil {
		return NewEngineError("RecordTurn", wrapSentinel(ErrPersistence, err))
	}
	return nil
}

// UpdateProfile merges facts into the user's profile. Existing keys not
// present in facts are retained; the last writer wins on conflicts.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, facts map[string]string) error {
	if strings.TrimSpace(userID) == "" {
		return NewEngineError("UpdateProfile", fmt.Errorf("%w: user id is required", ErrInvalidInput))
	}
	if len(facts) == 0 {
		return nil
	}
	if err := e.chat.UpdateProfile(ctx, userID, facts); err != nil {
		return NewEngineError("UpdateProfile", wrapSentinel(ErrPersistence, err))
	}
	return nil
}

// Remember stores text as a long-term memory for userID.
func (e *Engine) Remember(ctx context.Context, userID, text string) error {
	if err := validateTurnInput(userID, text); err != nil {
		return NewEngineError("Remember", err)
	}
	return e.semantic.Remember(ctx, userID, text)
}

// HandleTurn executes one full conversational turn: validate, assemble
// context, record the user's message, generate a reply, and record it.
//
// A generation failure does not fail the turn; the fixed fallback reply is
// substituted and recorded like a normal assistant message. Persistence
// failures do fail the turn.
func (e *Engine) HandleTurn(ctx context.Context, userID, message string) (string, error) {
	start := time.Now()

	if err := validateTurnInput(userID, message); err != nil {
		e.metrics.CountTurn("invalid")
		return "", NewEngineError("HandleTurn", err)
	}

	bundle, err := e.AssembleContext(ctx, userID, message)
	if err != nil {
		e.metrics.CountTurn("error")
		return "", err
	}

	if err := e.chat.AppendTurn(ctx, userID, chatstore.RoleUser, message); err != nil {
		e.metrics.CountTurn("error")
		return "", NewEngineError("HandleTurn", wrapSentinel(ErrPersistence, err))
	}

	reply, genErr := e.generate(ctx, bundle)
	outcome := "ok"
	if genErr != nil {
		e.logger.Warn("generation failed, using fallback reply",
			zap.String("user_id", userID),
			zap.Error(genErr))
		reply = FallbackReply
		outcome = "fallback"
	}

	if err := e.chat.AppendTurn(ctx, userID, chatstore.RoleAssistant, reply); err != nil {
		e.metrics.CountTurn("error")
		return "", NewEngineError("HandleTurn", wrapSentinel(ErrPersistence, err))
	}

	if e.cfg.Memory.AutoRemember && genErr == nil {
		if err := e.semantic.Remember(ctx, userID, message); err != nil {
			e.logger.Warn("auto-remember failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	e.metrics.CountTurn(outcome)
	e.metrics.ObserveTurnLatency(time.Since(start))
	e.logger.Info("turn completed",
		zap.String("user_id", userID),
		zap.String("outcome", outcome),
		zap.Int("history", len(bundle.History)),
		zap.Int("memories", len(bundle.Memories)),
		zap.Duration("elapsed", time.Since(start)))

	return reply, nil
}

// generate renders the bundle into a conversation and calls the generation
// provider. History precedes the current message in chronological order.
func (e *Engine) generate(ctx context.Context, bundle *ContextBundle) (string, error) {
	messages := make([]llm.Message, 0, len(bundle.History)+2)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: buildPrompt(bundle),
	})
	for _, turn := range bundle.History {
		messages = append(messages, llm.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: bundle.Message,
	})

	reply, err := e.generator.GenerateWithMessages(ctx, messages)
	if err != nil {
		return "", wrapSentinel(ErrGeneration, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", wrapSentinel(ErrGeneration, errors.New("empty completion"))
	}
	return reply, nil
}

// PurgeUser erases the user from both stores: profile, chat log, and all
// semantic memories. Both deletions are attempted even if one fails; purging
// an unknown user succeeds with no effect.
func (e *Engine) PurgeUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		e.metrics.CountPurge("invalid")
		return NewEngineError("PurgeUser", fmt.Errorf("%w: user id is required", ErrInvalidInput))
	}

	chatErr := e.chat.PurgeUser(ctx, userID)
	if chatErr != nil {
		chatErr = wrapSentinel(ErrPersistence, chatErr)
	}
	semErr := e.semantic.PurgeUser(ctx, userID)

	if err := errors.Join(chatErr, semErr); err != nil {
		e.metrics.CountPurge("error")
		return NewEngineError("PurgeUser", err)
	}

	e.metrics.CountPurge("ok")
	e.logger.Info("user purged", zap.String("user_id", userID))
	return nil
}

// HandleReset erases the user on request from the conversation surface. It
// is PurgeUser under the name the transport layer uses.
func (e *Engine) HandleReset(ctx context.Context, userID string) error {
	return e.PurgeUser(ctx, userID)
}

// Close releases every component the engine owns.
func (e *Engine) Close() error {
	var errs []error
	if e.chat != nil {
		if err := e.chat.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.semantic != nil {
		if err := e.semantic.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.generator != nil {
		if err := e.generator.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
