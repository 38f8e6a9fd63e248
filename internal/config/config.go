// Package config provides configuration loading for ragc.
//
// Configuration is an explicit object passed into session construction;
// there is no global mutable state. Values come from an optional YAML file
// overridden by environment variables, with hardcoded defaults below both.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kcxain/ragc/internal/logging"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration object.
type Config struct {
	GitHub     GitHubConfig     `koanf:"github"`
	LLM        LLMConfig        `koanf:"llm"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Corpus     CorpusConfig     `koanf:"corpus"`
	Index      IndexConfig      `koanf:"index"`
	Session    SessionConfig    `koanf:"session"`
	Logging    logging.Config   `koanf:"logging"`
}

// GitHubConfig configures the code host client.
type GitHubConfig struct {
	// Token is the bearer token for the GitHub API.
	Token string `koanf:"token"`

	// PerPage is the search page size.
	PerPage int `koanf:"per_page"`

	// MaxPages is the maximum number of search pages fetched per keyword.
	MaxPages int `koanf:"max_pages"`

	// KeywordCooldown is the pause between per-keyword search batches,
	// kept below GitHub's abuse-detection thresholds.
	KeywordCooldown time.Duration `koanf:"keyword_cooldown"`

	// RetryDelay is the fixed delay between retries of transient errors.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// MaxRetries bounds retries of transient network errors.
	MaxRetries int `koanf:"max_retries"`

	// Timeout is the per-HTTP-call timeout.
	Timeout time.Duration `koanf:"timeout"`

	// BaseURL overrides the API base URL (tests, GitHub Enterprise).
	BaseURL string `koanf:"base_url"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	APIKey    string        `koanf:"api_key"`
	MaxTokens int           `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`

	// MaxRetries bounds retries on rate-limit and connectivity errors.
	MaxRetries int `koanf:"max_retries"`
}

// EmbeddingsConfig configures the embedding collaborator.
// Works with OpenAI or any OpenAI-compatible server (TEI).
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// CorpusConfig configures the README corpus builder.
type CorpusConfig struct {
	// Workers is the bounded worker-pool width for README fetching.
	Workers int `koanf:"workers"`

	// ChunkSize and ChunkOverlap control README chunking (characters).
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	// MinStars is an admission filter applied before any fetch.
	MinStars int `koanf:"min_stars"`

	// MaxRepoSizeMB excludes oversized repositories. 0 disables the cap.
	MaxRepoSizeMB int `koanf:"max_repo_size_mb"`
}

// IndexConfig configures the hybrid index and its cache.
type IndexConfig struct {
	// LexicalWeight and DenseWeight are the fusion weights. Lexical is
	// favored: exact technical-term overlap predicts a match better than
	// semantic similarity alone for code search.
	LexicalWeight float64 `koanf:"lexical_weight"`
	DenseWeight   float64 `koanf:"dense_weight"`

	// CacheDir is the root directory for persisted index artifacts.
	CacheDir string `koanf:"cache_dir"`
}

// SessionConfig configures the ranking/review loop.
type SessionConfig struct {
	// TopK is the size of the ranked list sent to review.
	TopK int `koanf:"top_k"`

	// MaxRounds bounds PLAN/REVIEW cycles.
	MaxRounds int `koanf:"max_rounds"`

	// ExcerptBytes truncates each README excerpt in the review prompt.
	ExcerptBytes int `koanf:"excerpt_bytes"`

	// MinFusedScore is the acceptance threshold policy: a review pick whose
	// fused score is below it is treated as a rejection. 0 leaves acceptance
	// entirely to the review step.
	MinFusedScore float64 `koanf:"min_fused_score"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("%w: github.token is required (set GITHUB_TOKEN)", ErrInvalidConfig)
	}
	if c.GitHub.PerPage <= 0 || c.GitHub.PerPage > 100 {
		return fmt.Errorf("%w: github.per_page must be in 1..100", ErrInvalidConfig)
	}
	if c.GitHub.MaxPages <= 0 {
		return fmt.Errorf("%w: github.max_pages must be positive", ErrInvalidConfig)
	}
	if c.Corpus.Workers <= 0 {
		return fmt.Errorf("%w: corpus.workers must be positive", ErrInvalidConfig)
	}
	if c.Corpus.ChunkSize <= 0 {
		return fmt.Errorf("%w: corpus.chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Corpus.ChunkOverlap < 0 || c.Corpus.ChunkOverlap >= c.Corpus.ChunkSize {
		return fmt.Errorf("%w: corpus.chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if c.Index.LexicalWeight < 0 || c.Index.DenseWeight < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", ErrInvalidConfig)
	}
	if c.Index.LexicalWeight+c.Index.DenseWeight == 0 {
		return fmt.Errorf("%w: at least one fusion weight must be positive", ErrInvalidConfig)
	}
	if c.Session.TopK <= 0 {
		return fmt.Errorf("%w: session.top_k must be positive", ErrInvalidConfig)
	}
	if c.Session.MaxRounds <= 0 {
		return fmt.Errorf("%w: session.max_rounds must be positive", ErrInvalidConfig)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
