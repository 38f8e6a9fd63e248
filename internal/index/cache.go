package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const manifestFile = "manifest.json"

// manifest records the canonical keyword set an artifact was built for.
// Lookup matches on set-equality of these decoded keywords, not on the
// directory name, so reordered keyword lists across calls still hit.
type manifest struct {
	Keywords []string `json:"keywords"`
}

// Cache maps canonicalized keyword sets to persisted index artifacts under
// one root directory. Artifacts are local to a single machine and not
// protected against concurrent writers from separate processes.
type Cache struct {
	root     string
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, embedder Embedder, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Cache{root: dir, embedder: embedder, cfg: cfg, logger: logger}
}

// CanonicalKeywords lower-cases, trims, deduplicates and sorts a keyword
// list. The same rule runs on every lookup and store, so equality of the
// result is equality of the keyword set.
func CanonicalKeywords(keywords []string) []string {
	set := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			set[kw] = true
		}
	}
	canonical := make([]string, 0, len(set))
	for kw := range set {
		canonical = append(canonical, kw)
	}
	sort.Strings(canonical)
	return canonical
}

// Lookup scans persisted artifacts for one whose manifest keywords are
// set-equal to the canonicalized input and loads it. Returns ErrCacheMiss
// when none matches.
func (c *Cache) Lookup(ctx context.Context, keywords []string) (*Index, error) {
	want := CanonicalKeywords(keywords)
	if len(want) == 0 {
		return nil, ErrCacheMiss
	}

	entries, err := os.ReadDir(c.root)
	if os.IsNotExist(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("scanning cache root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(c.root, entry.Name())
		stored, err := readManifest(dir)
		if err != nil {
			c.logger.Warn("skipping unreadable cache artifact",
				zap.String("dir", dir),
				zap.Error(err),
			)
			continue
		}
		if !sameKeywordSet(want, CanonicalKeywords(stored)) {
			continue
		}
		idx, err := Load(ctx, dir, c.embedder, c.cfg, c.logger)
		if err != nil {
			c.logger.Warn("cache artifact matched but failed to load, rebuilding",
				zap.String("dir", dir),
				zap.Error(err),
			)
			return nil, ErrCacheMiss
		}
		c.logger.Info("index cache hit",
			zap.Strings("keywords", want),
			zap.String("dir", dir),
		)
		return idx, nil
	}
	return nil, ErrCacheMiss
}

// Store builds a persisted index from the documents and records the
// canonical keyword set in the artifact manifest.
func (c *Cache) Store(ctx context.Context, keywords []string, docs []Document) (*Index, error) {
	canonical := CanonicalKeywords(keywords)
	if len(canonical) == 0 {
		return nil, fmt.Errorf("%w: no keywords to key the artifact", ErrInvalidConfig)
	}

	dir := filepath.Join(c.root, artifactName(canonical))
	// A stale artifact under the same name is replaced wholesale; partial
	// updates are not a supported mutation path.
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clearing artifact directory: %w", err)
	}

	idx, err := Build(ctx, docs, c.embedder, c.cfg, dir, c.logger)
	if err != nil {
		return nil, err
	}
	if err := writeManifest(dir, canonical); err != nil {
		return nil, err
	}
	c.logger.Info("index artifact stored",
		zap.Strings("keywords", canonical),
		zap.String("dir", dir),
	)
	return idx, nil
}

// artifactName is the deterministic join of the sorted, lower-cased
// keywords, sanitized for use as a directory name.
func artifactName(canonical []string) string {
	name := strings.Join(canonical, "-")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}

func sameKeywordSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeManifest(dir string, keywords []string) error {
	data, err := json.Marshal(manifest{Keywords: keywords})
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(dir, manifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func readManifest(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m.Keywords, nil
}
