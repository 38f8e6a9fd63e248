package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "test-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GitHub.PerPage != 50 {
		t.Errorf("GitHub.PerPage = %d, want 50", cfg.GitHub.PerPage)
	}
	if cfg.GitHub.KeywordCooldown != 10*time.Second {
		t.Errorf("GitHub.KeywordCooldown = %v, want 10s", cfg.GitHub.KeywordCooldown)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM.Model = %q, want gpt-4o-mini", cfg.LLM.Model)
	}
	if cfg.Embeddings.Model != "text-embedding-3-small" {
		t.Errorf("Embeddings.Model = %q, want text-embedding-3-small", cfg.Embeddings.Model)
	}
	if cfg.Corpus.Workers != 5 || cfg.Corpus.ChunkSize != 150 || cfg.Corpus.ChunkOverlap != 30 {
		t.Errorf("Corpus defaults = %+v, want workers 5, chunk 150/30", cfg.Corpus)
	}
	if cfg.Corpus.MinStars != 50 {
		t.Errorf("Corpus.MinStars = %d, want 50", cfg.Corpus.MinStars)
	}
	if cfg.Index.LexicalWeight != 0.8 || cfg.Index.DenseWeight != 0.2 {
		t.Errorf("Index weights = %f/%f, want 0.8/0.2", cfg.Index.LexicalWeight, cfg.Index.DenseWeight)
	}
	if cfg.Session.TopK != 5 || cfg.Session.MaxRounds != 5 {
		t.Errorf("Session defaults = %+v, want top_k 5 and max_rounds 5", cfg.Session)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("GITHUB_PER_PAGE", "25")
	t.Setenv("GITHUB_KEYWORD_COOLDOWN", "2s")
	t.Setenv("SESSION_TOP_K", "10")
	t.Setenv("CORPUS_MIN_STARS", "5")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GitHub.PerPage != 25 {
		t.Errorf("GitHub.PerPage = %d, want 25", cfg.GitHub.PerPage)
	}
	if cfg.GitHub.KeywordCooldown != 2*time.Second {
		t.Errorf("GitHub.KeywordCooldown = %v, want 2s", cfg.GitHub.KeywordCooldown)
	}
	if cfg.Session.TopK != 10 {
		t.Errorf("Session.TopK = %d, want 10", cfg.Session.TopK)
	}
	if cfg.Corpus.MinStars != 5 {
		t.Errorf("Corpus.MinStars = %d, want 5", cfg.Corpus.MinStars)
	}
	if cfg.Embeddings.APIKey != "sk-test" {
		t.Errorf("Embeddings.APIKey = %q, want the LLM key as fallback", cfg.Embeddings.APIKey)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")

	content := []byte(`
github:
  per_page: 30
index:
  lexical_weight: 0.6
  dense_weight: 0.4
  cache_dir: /tmp/ragc-db
session:
  max_rounds: 3
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GitHub.Token != "env-token" {
		t.Errorf("GitHub.Token = %q, environment must override the file", cfg.GitHub.Token)
	}
	if cfg.GitHub.PerPage != 30 {
		t.Errorf("GitHub.PerPage = %d, want 30 from file", cfg.GitHub.PerPage)
	}
	if cfg.Index.LexicalWeight != 0.6 || cfg.Index.DenseWeight != 0.4 {
		t.Errorf("Index weights = %f/%f, want 0.6/0.4 from file", cfg.Index.LexicalWeight, cfg.Index.DenseWeight)
	}
	if cfg.Index.CacheDir != "/tmp/ragc-db" {
		t.Errorf("Index.CacheDir = %q, want /tmp/ragc-db", cfg.Index.CacheDir)
	}
	if cfg.Session.MaxRounds != 3 {
		t.Errorf("Session.MaxRounds = %d, want 3 from file", cfg.Session.MaxRounds)
	}
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")

	_, err := Load("")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig for a missing token", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("Load() error = nil, want error for a missing config file")
	}
}

func TestValidateBounds(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "test-token")

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"per_page over 100", "GITHUB_PER_PAGE", "500"},
		{"chunk overlap at chunk size", "CORPUS_CHUNK_OVERLAP", "150"},
		{"negative dense weight", "INDEX_DENSE_WEIGHT", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"GITHUB_TOKEN", "github.token"},
		{"SESSION_TOP_K", "session.top_k"},
		{"LOGGING_LEVEL", "logging.level"},
		{"STANDALONE", "standalone"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
