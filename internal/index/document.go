// Package index provides the hybrid lexical+dense retrieval index over
// README documents, plus a keyword-keyed artifact cache.
package index

import (
	"context"
	"errors"
)

// Sentinel errors for index operations.
var (
	// ErrEmptyCorpus indicates an attempt to build or search an index with
	// no documents.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrCacheMiss indicates no persisted artifact matches the keyword set.
	ErrCacheMiss = errors.New("index cache miss")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Document is one README chunk. RepoFullName is a back-reference to the
// repository that yielded it; all chunks of one README share it. A Document
// always has non-empty Content.
type Document struct {
	ID           string `json:"id"`
	RepoFullName string `json:"repo_full_name"`
	Content      string `json:"content"`
	Description  string `json:"description,omitempty"`
	Stars        int    `json:"stars"`
	ReadmePath   string `json:"readme_path,omitempty"`
}

// RankedResult is one entry of a fused ranking, most-relevant first.
type RankedResult struct {
	RepoFullName string  `json:"repo_full_name"`
	Score        float64 `json:"score"`
	Excerpt      string  `json:"excerpt"`
}

// Embedder generates fixed-length vectors from text. It is an external
// collaborator; langchaingo's OpenAI-compatible embedder satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
