// Package corpus builds the README document corpus for a candidate set.
package corpus

import (
	"context"
	"strings"
	"sync"

	"github.com/kcxain/ragc/internal/githubclient"
	"github.com/kcxain/ragc/internal/index"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// sourceExtensions are the file extensions that mark a repository as
// containing source code. A candidate without at least one is excluded.
var sourceExtensions = []string{
	".py", ".js", ".ts", ".cpp", ".c", ".java", ".rb",
	".go", ".php", ".html", ".css", ".swift", ".kt",
	".rs", ".cu",
}

// HostClient is the slice of the code host client the builder needs.
type HostClient interface {
	ListFiles(ctx context.Context, fullName string) ([]githubclient.FileEntry, error)
	FileContent(ctx context.Context, fullName, path string) (string, bool, error)
}

// Config holds builder configuration.
type Config struct {
	// Workers is the bounded worker-pool width. Default: 5.
	Workers int

	// ChunkSize and ChunkOverlap control README chunking in characters.
	// Defaults: 150 and 30.
	ChunkSize    int
	ChunkOverlap int

	// MinStars is an admission filter applied before any fetch; 0 admits
	// everything.
	MinStars int

	// MaxRepoSizeMB excludes oversized repositories; 0 disables the cap.
	MaxRepoSizeMB int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = 5
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 150
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 30
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
}

// Builder fetches and chunks candidate READMEs into Documents.
type Builder struct {
	host   HostClient
	cfg    Config
	logger *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(host HostClient, cfg Config, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Builder{host: host, cfg: cfg, logger: logger}
}

// Build fetches each admitted candidate's README concurrently and returns
// one Document per chunk. A candidate qualifies only if its top-level
// listing shows at least one recognized source-file extension and a file
// whose name starts with "readme" (case-insensitive). Per-candidate
// failures are logged and skipped; they never abort sibling fetches.
// Candidates that yield no README text are silently dropped.
func (b *Builder) Build(ctx context.Context, candidates []githubclient.Repository) ([]index.Document, error) {
	var (
		mu   sync.Mutex
		docs []index.Document
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	for _, candidate := range candidates {
		if !b.admit(candidate) {
			continue
		}
		candidate := candidate
		g.Go(func() error {
			chunks, err := b.fetchOne(ctx, candidate)
			if err != nil {
				// Failure isolation: skip this candidate, keep siblings.
				b.logger.Warn("skipping candidate",
					zap.String("repo", candidate.FullName),
					zap.Error(err),
				)
				return nil
			}
			if len(chunks) == 0 {
				return nil
			}
			mu.Lock()
			docs = append(docs, chunks...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.logger.Info("corpus built",
		zap.Int("candidates", len(candidates)),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

// admit applies the cheap pre-filters before any network call.
func (b *Builder) admit(candidate githubclient.Repository) bool {
	if b.cfg.MinStars > 0 && candidate.Stars < b.cfg.MinStars {
		return false
	}
	if b.cfg.MaxRepoSizeMB > 0 && candidate.SizeKB > b.cfg.MaxRepoSizeMB*1024 {
		return false
	}
	return true
}

// fetchOne inspects one candidate and returns its README chunks, or nil if
// the candidate does not qualify.
func (b *Builder) fetchOne(ctx context.Context, candidate githubclient.Repository) ([]index.Document, error) {
	entries, err := b.host.ListFiles(ctx, candidate.FullName)
	if err != nil {
		return nil, err
	}

	containsSource := false
	readmePath := ""
	for _, entry := range entries {
		if entry.Type != "file" {
			continue
		}
		if hasSourceExtension(entry.Name) {
			containsSource = true
		}
		if strings.HasPrefix(strings.ToLower(entry.Name), "readme") {
			readmePath = entry.Path
		}
	}
	if !containsSource || readmePath == "" {
		return nil, nil
	}

	content, found, err := b.host.FileContent(ctx, candidate.FullName, readmePath)
	if err != nil {
		return nil, err
	}
	if !found || strings.TrimSpace(content) == "" {
		return nil, nil
	}

	chunks := splitChunks(content, b.cfg.ChunkSize, b.cfg.ChunkOverlap)
	docs := make([]index.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, index.Document{
			RepoFullName: candidate.FullName,
			Content:      chunk,
			Description:  candidate.Description,
			Stars:        candidate.Stars,
			ReadmePath:   readmePath,
		})
	}
	return docs, nil
}

func hasSourceExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// splitChunks splits text into fixed-size chunks with the given overlap.
// Boundaries are rune-aligned so multi-byte characters never get cut.
func splitChunks(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
