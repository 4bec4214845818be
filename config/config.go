// Package config handles the plexrec settings file, .env loading and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/plexrec/ai"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the settings file used when --config is not given.
	DefaultPath = "config/config.yml"
	// DefaultDataDir holds catalogs, caches and the history database.
	DefaultDataDir = "data"
	// DefaultAddr is the HTTP API listen address.
	DefaultAddr = ":8080"

	BackendFiles  = "files"
	BackendBadger = "badger"
)

// API key names accepted by SetAPIKey.
const (
	KeyTMDB               = "tmdb_api_key"
	KeyOMDB               = "omdb_api_key"
	KeyRedditClientID     = "reddit_client_id"
	KeyRedditClientSecret = "reddit_client_secret"
)

var (
	// ErrUnknownAPIKey is returned by SetAPIKey for an unsupported key name.
	ErrUnknownAPIKey = errors.New("unknown api key name")

	// ErrInvalidBackend is returned for a cache backend other than files or badger.
	ErrInvalidBackend = errors.New("invalid cache backend")
)

// Config is the contents of the settings file.
type Config struct {
	DataDir     string          `yaml:"data_dir"`
	HistoryPath string          `yaml:"history_path,omitempty"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	Cache       CacheConfig     `yaml:"cache"`
	APIKeys     APIKeys         `yaml:"api_keys"`
	Server      ServerConfig    `yaml:"server"`
}

// EmbeddingConfig selects and tunes the text embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Host       string `yaml:"host,omitempty"`
	Model      string `yaml:"model"`
	Device     string `yaml:"device"`
	BatchSize  int    `yaml:"batch_size,omitempty"`
	PoolSize   int    `yaml:"pool_size,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
}

// CacheConfig selects the embedding cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"` // badger directory
}

// APIKeys holds credentials for external metadata sources.
type APIKeys struct {
	TMDB               string `yaml:"tmdb_api_key,omitempty"`
	OMDB               string `yaml:"omdb_api_key,omitempty"`
	RedditClientID     string `yaml:"reddit_client_id,omitempty"`
	RedditClientSecret string `yaml:"reddit_client_secret,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no settings file exists.
// Without an embedding host the offline hashing embedder is used.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		DataDir: DefaultDataDir,
		Embedding: EmbeddingConfig{
			Provider:   ai.ProviderHashing,
			Model:      aiDefaults.EmbeddingModel,
			Device:     aiDefaults.Device,
			BatchSize:  aiDefaults.BatchSize,
			PoolSize:   aiDefaults.PoolSize,
			Dimensions: aiDefaults.Dimensions,
		},
		Cache:  CacheConfig{Backend: BackendFiles},
		Server: ServerConfig{Addr: DefaultAddr},
	}
}

// Load reads the settings file at path on top of the defaults, loads
// envFiles (".env" when none are given) and applies environment overrides.
// A missing settings or env file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, names ...string) {
		for _, name := range names {
			if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	set(&c.DataDir, "PLEXREC_DATA_DIR")
	set(&c.Embedding.Host, "PLEXREC_EMBEDDING_HOST")
	set(&c.Embedding.Model, "PLEXREC_EMBEDDING_MODEL", "SENTENCE_MODEL")
	set(&c.Embedding.Device, "PLEXREC_EMBEDDING_DEVICE")
	set(&c.Embedding.Provider, "PLEXREC_EMBEDDING_PROVIDER")
	set(&c.Cache.Backend, "PLEXREC_CACHE_BACKEND")
	set(&c.APIKeys.TMDB, "TMDB_API_KEY")
	set(&c.Server.Addr, "PLEXREC_ADDR")

	if v, ok := lookup("PLEXREC_EMBEDDING_BATCH_SIZE"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Embedding.BatchSize = n
		}
	}

	// A host from the environment without a provider means an OpenAI-compatible server.
	_, hasHost := lookup("PLEXREC_EMBEDDING_HOST")
	_, hasProvider := lookup("PLEXREC_EMBEDDING_PROVIDER")
	if hasHost && !hasProvider && c.Embedding.Host != "" && c.Embedding.Provider == ai.ProviderHashing {
		c.Embedding.Provider = ai.ProviderOpenAI
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: data_dir is required")
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	switch c.Cache.Backend {
	case "":
		c.Cache.Backend = BackendFiles
	case BackendFiles, BackendBadger:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Cache.Backend)
	}
	return c.AIConfig().Validate()
}

// AIConfig converts the embedding section to an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithProvider(c.Embedding.Provider),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithDevice(c.Embedding.Device),
	}
	if c.Embedding.Host != "" {
		opts = append(opts, ai.WithEmbeddingHost(c.Embedding.Host))
	}
	if c.Embedding.BatchSize > 0 {
		opts = append(opts, ai.WithBatchSize(c.Embedding.BatchSize))
	}
	if c.Embedding.PoolSize > 0 {
		opts = append(opts, ai.WithPoolSize(c.Embedding.PoolSize))
	}
	if c.Embedding.Dimensions > 0 {
		opts = append(opts, ai.WithDimensions(c.Embedding.Dimensions))
	}
	cfg := ai.NewConfig(opts...)
	cfg.Normalize()
	return cfg
}

// HistoryFile returns the history database path.
func (c *Config) HistoryFile() string {
	if c.HistoryPath != "" {
		return c.HistoryPath
	}
	return filepath.Join(c.DataDir, "history.db")
}

// BadgerDir returns the badger cache directory.
func (c *Config) BadgerDir() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.DataDir, "cache")
}

// SetAPIKey stores a trimmed credential under one of the supported key names.
// An empty value clears the key.
func (c *Config) SetAPIKey(name, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case KeyTMDB:
		c.APIKeys.TMDB = value
	case KeyOMDB:
		c.APIKeys.OMDB = value
	case KeyRedditClientID:
		c.APIKeys.RedditClientID = value
	case KeyRedditClientSecret:
		c.APIKeys.RedditClientSecret = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAPIKey, name)
	}
	return nil
}

// Save writes cfg to path as YAML, replacing the file atomically.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yml")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}
