package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for the memory engine and the
// server binary built on top of it.
type Config struct {
	// ChatStore configures the structured store (profiles + chat log).
	ChatStore ChatStoreConfig `json:"chat_store"`

	// VectorStore configures the semantic index storage backend.
	VectorStore VectorStoreConfig `json:"vector_store"`

	// Embedder configures the embedding provider.
	Embedder EmbedderConfig `json:"embedder"`

	// LLM configures the generation provider.
	LLM LLMConfig `json:"llm"`

	// Memory configures context assembly behavior.
	Memory MemoryConfig `json:"memory"`

	// Server configures the HTTP binary. Ignored by library users.
	Server ServerConfig `json:"server"`
}

// ChatStoreConfig selects and configures the structured store backend.
//
// Supported providers: sqlite, postgres.
type ChatStoreConfig struct {
	Provider string         `json:"provider"`
	SQLite   SQLiteConfig   `json:"sqlite,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty"`
}

// VectorStoreConfig selects and configures the semantic index backend.
//
// Supported providers: sqlite, postgres, mysql, chromem.
type VectorStoreConfig struct {
	Provider string `json:"provider"`

	// CollectionName is the table or collection used for memory records.
	CollectionName string `json:"collection_name,omitempty"`

	SQLite   SQLiteConfig   `json:"sqlite,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty"`
	MySQL    MySQLConfig    `json:"mysql,omitempty"`
	Chromem  ChromemConfig  `json:"chromem,omitempty"`
}

// SQLiteConfig holds SQLite file settings.
type SQLiteConfig struct {
	DBPath string `json:"db_path"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

// ChromemConfig holds settings for the embedded chromem backend.
type ChromemConfig struct {
	// Path is the persistence directory; empty keeps records in memory.
	Path string `json:"path,omitempty"`
}

// EmbedderConfig configures the embedding provider.
//
// Supported providers: openai (covers OpenAI-compatible endpoints via
// BaseURL).
type EmbedderConfig struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	BaseURL    string `json:"base_url,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// LLMConfig configures the generation provider.
//
// Supported providers: openai, ollama.
type LLMConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`
}

// MemoryConfig configures context assembly behavior.
type MemoryConfig struct {
	// HistoryLimit bounds the chat history included in a context bundle.
	HistoryLimit int `json:"history_limit"`

	// TopK bounds the semantic memories included in a context bundle.
	TopK int `json:"top_k"`

	// RecallTimeout bounds each embedding or index sub-call. A timeout is
	// treated like any other degradable failure.
	RecallTimeout time.Duration `json:"recall_timeout"`

	// AutoRemember stores each user message as a semantic memory after the
	// turn completes (best-effort).
	AutoRemember bool `json:"auto_remember"`
}

// ServerConfig configures the HTTP server binary.
type ServerConfig struct {
	BindAddr         string        `json:"bind_addr"`
	StaticDir        string        `json:"static_dir,omitempty"`
	MetricsNamespace string        `json:"metrics_namespace"`
	ShutdownTimeout  time.Duration `json:"shutdown_timeout"`
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.ChatStore.Provider {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported chat store provider: %q", c.ChatStore.Provider)
	}

	switch c.VectorStore.Provider {
	case "sqlite", "postgres", "mysql", "chromem":
	default:
		return fmt.Errorf("unsupported vector store provider: %q", c.VectorStore.Provider)
	}

	switch c.Embedder.Provider {
	case "openai":
	default:
		return fmt.Errorf("unsupported embedder provider: %q", c.Embedder.Provider)
	}

	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}

	if c.Embedder.Dimensions <= 0 {
		return fmt.Errorf("embedder dimensions must be positive, got %d", c.Embedder.Dimensions)
	}
	if c.Memory.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.Memory.HistoryLimit)
	}
	if c.Memory.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", c.Memory.TopK)
	}
	if c.Memory.RecallTimeout <= 0 {
		return fmt.Errorf("recall timeout must be positive, got %s", c.Memory.RecallTimeout)
	}

	return nil
}

// LoadConfigFromEnv loads configuration from environment variables, reading a
// .env file first when one is found in the current directory or up to five
// levels above it.
//
// Supported variables:
//   - CHAT_STORE_PROVIDER (sqlite, postgres), VECTOR_STORE_PROVIDER
//     (sqlite, postgres, mysql, chromem)
//   - SQLITE_PATH, VECTOR_SQLITE_PATH, VECTOR_COLLECTION, CHROMEM_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - MEMORY_HISTORY_LIMIT, MEMORY_TOP_K, MEMORY_RECALL_TIMEOUT,
//     MEMORY_AUTO_REMEMBER
//   - APP_BIND_ADDR, APP_STATIC_DIR, APP_METRICS_NAMESPACE,
//     APP_SHUTDOWN_TIMEOUT
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		ChatStore: ChatStoreConfig{
			Provider: getEnvOrDefault("CHAT_STORE_PROVIDER", "sqlite"),
			SQLite: SQLiteConfig{
				DBPath: getEnvOrDefault("SQLITE_PATH", "./convomem.db"),
			},
		},
		VectorStore: VectorStoreConfig{
			Provider:       getEnvOrDefault("VECTOR_STORE_PROVIDER", "sqlite"),
			CollectionName: getEnvOrDefault("VECTOR_COLLECTION", "user_memories"),
			SQLite: SQLiteConfig{
				DBPath: getEnvOrDefault("VECTOR_SQLITE_PATH", "./convomem_vectors.db"),
			},
			Chromem: ChromemConfig{
				Path: os.Getenv("CHROMEM_PATH"),
			},
		},
		Embedder: EmbedderConfig{
			Provider: getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:   os.Getenv("EMBEDDING_API_KEY"),
			Model:    getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-ada-002"),
			BaseURL:  os.Getenv("EMBEDDING_BASE_URL"),
		},
		LLM: LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		},
		Memory: MemoryConfig{
			HistoryLimit:  200,
			TopK:          3,
			RecallTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			BindAddr:         getEnvOrDefault("APP_BIND_ADDR", ":8080"),
			StaticDir:        os.Getenv("APP_STATIC_DIR"),
			MetricsNamespace: getEnvOrDefault("APP_METRICS_NAMESPACE", "convomem"),
			ShutdownTimeout:  15 * time.Second,
		},
	}

	var err error
	cfg.Embedder.Dimensions, err = intFromEnv("EMBEDDING_DIMENSIONS", 1536)
	if err != nil {
		return nil, err
	}
	cfg.Memory.HistoryLimit, err = intFromEnv("MEMORY_HISTORY_LIMIT", cfg.Memory.HistoryLimit)
	if err != nil {
		return nil, err
	}
	cfg.Memory.TopK, err = intFromEnv("MEMORY_TOP_K", cfg.Memory.TopK)
	if err != nil {
		return nil, err
	}
	cfg.Memory.RecallTimeout, err = durationFromEnv("MEMORY_RECALL_TIMEOUT", cfg.Memory.RecallTimeout)
	if err != nil {
		return nil, err
	}
	cfg.Memory.AutoRemember, err = boolFromEnv("MEMORY_AUTO_REMEMBER", false)
	if err != nil {
		return nil, err
	}
	cfg.Server.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	if err != nil {
		return nil, err
	}

	pgPort, err := intFromEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, err
	}
	pg := PostgresConfig{
		Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:     pgPort,
		User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DBName:   getEnvOrDefault("POSTGRES_DATABASE", "convomem"),
		SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}
	cfg.ChatStore.Postgres = pg
	cfg.VectorStore.Postgres = pg

	myPort, err := intFromEnv("MYSQL_PORT", 3306)
	if err != nil {
		return nil, err
	}
	cfg.VectorStore.MySQL = MySQLConfig{
		Host:     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
		Port:     myPort,
		User:     getEnvOrDefault("MYSQL_USER", "root"),
		Password: os.Getenv("MYSQL_PASSWORD"),
		DBName:   getEnvOrDefault("MYSQL_DATABASE", "convomem"),
	}

	return cfg, nil
}

// FindEnvFile searches for a .env file in the current directory and up to
// five directory levels above it. Returns the path of the first file found.
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}

	for i := 0; i <= 5; i++ {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
