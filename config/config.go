// Package config loads application settings from an optional TOML file
// and AISYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/poiesic/aisync/ai"
	"github.com/poiesic/aisync/chunking"
	"github.com/poiesic/aisync/embedding"
)

// Config is the full application configuration.
type Config struct {
	LogLevel     string `toml:"log_level"`
	Organization string `toml:"organization"`

	Database  DatabaseConfig  `toml:"database"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Sync      SyncConfig      `toml:"sync"`
	Server    ServerConfig    `toml:"server"`
	NATS      NATSConfig      `toml:"nats"`
}

// DatabaseConfig locates the badger store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// EmbeddingConfig selects the embedding endpoint.
type EmbeddingConfig struct {
	Host       string        `toml:"host"`
	Model      string        `toml:"model"`
	Dimension  int           `toml:"dimension"`
	APIKey     string        `toml:"api_key"`
	Timeout    time.Duration `toml:"timeout"`
	MaxRetries int           `toml:"max_retries"`
}

// ChunkingConfig sizes the token windows.
type ChunkingConfig struct {
	ChunkSize    int    `toml:"chunk_size"`
	ChunkOverlap int    `toml:"chunk_overlap"`
	TokenModel   string `toml:"token_model"`
}

// SyncConfig controls import pacing.
type SyncConfig struct {
	BatchSize      int           `toml:"batch_size"`
	BatchDelay     time.Duration `toml:"batch_delay"`
	Concurrency    int           `toml:"concurrency"`
	UpdateOnChange bool          `toml:"update_on_change"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// NATSConfig configures sync event publishing. Events are disabled when
// URL is empty.
type NATSConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		LogLevel:     "info",
		Organization: "default",
		Database: DatabaseConfig{
			Path: defaultDBPath(),
		},
		Embedding: EmbeddingConfig{
			Host:       aiDefaults.EmbeddingHost,
			Model:      aiDefaults.EmbeddingModel,
			Dimension:  aiDefaults.EmbeddingDimension,
			Timeout:    aiDefaults.RequestTimeout,
			MaxRetries: embedding.DefaultMaxRetries,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    chunking.DefaultChunkSize,
			ChunkOverlap: chunking.DefaultChunkOverlap,
			TokenModel:   aiDefaults.EmbeddingModel,
		},
		Sync: SyncConfig{
			BatchSize:   embedding.DefaultBatchSize,
			BatchDelay:  embedding.DefaultBatchDelay,
			Concurrency: 1,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "aisync.db"
	}
	return filepath.Join(home, ".config", "aisync", "aisync.db")
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file; a named file that
// does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Database.Path = expandHome(cfg.Database.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Organization == "" {
		errs = append(errs, errors.New("organization is required"))
	}
	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk_size must be greater than 0"))
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		errs = append(errs, errors.New("chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Sync.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be greater than 0"))
	}
	if c.Sync.BatchDelay < 0 {
		errs = append(errs, errors.New("batch_delay cannot be negative"))
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if c.Embedding.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries cannot be negative"))
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AIConfig converts the embedding section into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return &ai.Config{
		EmbeddingHost:      c.Embedding.Host,
		EmbeddingModel:     c.Embedding.Model,
		EmbeddingDimension: c.Embedding.Dimension,
		APIKey:             c.Embedding.APIKey,
		RequestTimeout:     c.Embedding.Timeout,
	}
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"AISYNC_LOG_LEVEL":       &c.LogLevel,
		"AISYNC_ORGANIZATION":    &c.Organization,
		"AISYNC_DB_PATH":         &c.Database.Path,
		"AISYNC_EMBEDDING_HOST":  &c.Embedding.Host,
		"AISYNC_EMBEDDING_MODEL": &c.Embedding.Model,
		"AISYNC_API_KEY":         &c.Embedding.APIKey,
		"AISYNC_TOKEN_MODEL":     &c.Chunking.TokenModel,
		"AISYNC_SERVER_ADDR":     &c.Server.Addr,
		"AISYNC_NATS_URL":        &c.NATS.URL,
		"AISYNC_NATS_TOKEN":      &c.NATS.Token,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"AISYNC_EMBEDDING_DIMENSION": &c.Embedding.Dimension,
		"AISYNC_MAX_RETRIES":         &c.Embedding.MaxRetries,
		"AISYNC_CHUNK_SIZE":          &c.Chunking.ChunkSize,
		"AISYNC_CHUNK_OVERLAP":       &c.Chunking.ChunkOverlap,
		"AISYNC_BATCH_SIZE":          &c.Sync.BatchSize,
		"AISYNC_CONCURRENCY":         &c.Sync.Concurrency,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"AISYNC_EMBEDDING_TIMEOUT": &c.Embedding.Timeout,
		"AISYNC_BATCH_DELAY":       &c.Sync.BatchDelay,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup("AISYNC_UPDATE_ON_CHANGE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AISYNC_UPDATE_ON_CHANGE: %w", err)
		}
		c.Sync.UpdateOnChange = b
	}
	return nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
