package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (GITHUB_TOKEN, LLM_API_KEY, SESSION_TOP_K, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map to config keys by splitting on the first
// underscore: GITHUB_TOKEN -> github.token, SESSION_TOP_K -> session.top_k.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envTransform maps an environment variable name to a config key.
// Splits on the first underscore only: the prefix is the section, the
// remainder keeps its underscores as the field name.
func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// GitHub defaults follow the public API limits and abuse-detection
	// guidance: 50-item pages, 10s cooldown between keywords.
	if cfg.GitHub.PerPage == 0 {
		cfg.GitHub.PerPage = 50
	}
	if cfg.GitHub.MaxPages == 0 {
		cfg.GitHub.MaxPages = 1
	}
	if cfg.GitHub.KeywordCooldown == 0 {
		cfg.GitHub.KeywordCooldown = 10 * time.Second
	}
	if cfg.GitHub.RetryDelay == 0 {
		cfg.GitHub.RetryDelay = 5 * time.Second
	}
	if cfg.GitHub.MaxRetries == 0 {
		cfg.GitHub.MaxRetries = 3
	}
	if cfg.GitHub.Timeout == 0 {
		cfg.GitHub.Timeout = 10 * time.Second
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Embeddings.APIKey == "" {
		cfg.Embeddings.APIKey = cfg.LLM.APIKey
	}

	if cfg.Corpus.Workers == 0 {
		cfg.Corpus.Workers = 5
	}
	if cfg.Corpus.ChunkSize == 0 {
		cfg.Corpus.ChunkSize = 150
	}
	if cfg.Corpus.ChunkOverlap == 0 {
		cfg.Corpus.ChunkOverlap = 30
	}
	if cfg.Corpus.MinStars == 0 {
		cfg.Corpus.MinStars = 50
	}
	if cfg.Corpus.MaxRepoSizeMB == 0 {
		cfg.Corpus.MaxRepoSizeMB = 100
	}

	if cfg.Index.LexicalWeight == 0 && cfg.Index.DenseWeight == 0 {
		cfg.Index.LexicalWeight = 0.8
		cfg.Index.DenseWeight = 0.2
	}
	if cfg.Index.CacheDir == "" {
		cfg.Index.CacheDir = "./db"
	}

	if cfg.Session.TopK == 0 {
		cfg.Session.TopK = 5
	}
	if cfg.Session.MaxRounds == 0 {
		cfg.Session.MaxRounds = 5
	}
	if cfg.Session.ExcerptBytes == 0 {
		cfg.Session.ExcerptBytes = 1500
	}

	cfg.Logging.ApplyDefaults()
}
