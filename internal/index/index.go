package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Artifact layout inside a persisted index directory.
const (
	documentsFile = "documents.json"
	chromemSubdir = "chromem"
)

// rrfK is the reciprocal-rank-fusion constant. Matches the value used by
// common ensemble retrievers.
const rrfK = 60

// Config holds hybrid index configuration.
type Config struct {
	// LexicalWeight and DenseWeight are the fusion weights applied to the
	// BM25 and embedding signals. Defaults favor the lexical signal 0.8/0.2:
	// exact technical-term overlap (language names, hardware terms) predicts
	// a match better than semantic similarity alone.
	LexicalWeight float64
	DenseWeight   float64

	// Collection is the chromem collection name. Default: "readmes".
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.LexicalWeight == 0 && c.DenseWeight == 0 {
		c.LexicalWeight = 0.8
		c.DenseWeight = 0.2
	}
	if c.Collection == "" {
		c.Collection = "readmes"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LexicalWeight < 0 || c.DenseWeight < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", ErrInvalidConfig)
	}
	if c.LexicalWeight+c.DenseWeight == 0 {
		return fmt.Errorf("%w: at least one fusion weight must be positive", ErrInvalidConfig)
	}
	return nil
}

// Index is the hybrid lexical+dense index over one document corpus.
//
// An Index is built once and read-many: searches operate on the immutable
// snapshot; the supported mutation path is a full rebuild. Built in-memory
// or persisted to an artifact directory from which Load reconstructs a
// functionally identical Index without re-embedding documents.
type Index struct {
	cfg      Config
	docs     []Document
	lexical  *bm25Index
	coll     *chromem.Collection
	embedder Embedder
	logger   *zap.Logger
}

// Build embeds and indexes a document corpus. If dir is non-empty the index
// is persisted there (document store plus chromem vector store); otherwise
// it is in-memory only.
func Build(ctx context.Context, docs []Document, embedder Embedder, cfg Config, dir string, logger *zap.Logger) (*Index, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
	}

	db, err := openDB(dir)
	if err != nil {
		return nil, err
	}
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, embeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	cdocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		cdocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: vectors[i],
			Metadata:  map[string]string{"repo": doc.RepoFullName},
		}
	}
	if err := coll.AddDocuments(ctx, cdocs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("adding documents to vector store: %w", err)
	}

	if dir != "" {
		if err := writeDocuments(dir, docs); err != nil {
			return nil, err
		}
	}

	logger.Info("hybrid index built",
		zap.Int("documents", len(docs)),
		zap.String("dir", dir),
	)

	return &Index{
		cfg:      cfg,
		docs:     docs,
		lexical:  newBM25(docs),
		coll:     coll,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Load reconstructs a persisted Index from its artifact directory. Document
// embeddings are reloaded from the chromem store, not recomputed; the BM25
// side is rebuilt from the document store (pure CPU work).
func Load(ctx context.Context, dir string, embedder Embedder, cfg Config, logger *zap.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	docs, err := readDocuments(dir)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	db, err := chromem.NewPersistentDB(filepath.Join(dir, chromemSubdir), false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, embeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("opening collection: %w", err)
	}
	if coll.Count() != len(docs) {
		return nil, fmt.Errorf("artifact %s is inconsistent: %d vectors for %d documents", dir, coll.Count(), len(docs))
	}

	logger.Info("hybrid index loaded",
		zap.Int("documents", len(docs)),
		zap.String("dir", dir),
	)

	return &Index{
		cfg:      cfg,
		docs:     docs,
		lexical:  newBM25(docs),
		coll:     coll,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Documents returns the indexed corpus.
func (idx *Index) Documents() []Document {
	return idx.docs
}

// Search retrieves the top-k from each signal independently and fuses them
// by weighted reciprocal-rank combination. Results are deduplicated by
// repository, keeping each repository's best chunk as the excerpt. The
// ordering is a total order over fused scores; ties break by insertion
// order.
func (idx *Index) Search(ctx context.Context, queryText string, k int) ([]RankedResult, error) {
	if len(idx.docs) == 0 {
		return nil, ErrEmptyCorpus
	}
	if k <= 0 {
		k = 5
	}

	perSignal := k
	if perSignal > len(idx.docs) {
		perSignal = len(idx.docs)
	}

	fused := make(map[int]float64)

	for rank, hit := range idx.lexical.search(queryText, perSignal) {
		fused[hit.docIdx] += idx.cfg.LexicalWeight / float64(rrfK+rank+1)
	}

	if idx.cfg.DenseWeight > 0 {
		results, err := idx.coll.Query(ctx, queryText, perSignal, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("dense search: %w", err)
		}
		byID := make(map[string]int, len(idx.docs))
		for i, doc := range idx.docs {
			byID[doc.ID] = i
		}
		for rank, res := range results {
			pos, ok := byID[res.ID]
			if !ok {
				continue
			}
			fused[pos] += idx.cfg.DenseWeight / float64(rrfK+rank+1)
		}
	}

	// Candidates in insertion order so the later stable sort breaks ties
	// deterministically.
	candidates := make([]int, 0, len(fused))
	for i := range idx.docs {
		if _, ok := fused[i]; ok {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return fused[candidates[a]] > fused[candidates[b]]
	})

	seen := make(map[string]bool)
	ranked := make([]RankedResult, 0, k)
	for _, pos := range candidates {
		doc := idx.docs[pos]
		if seen[doc.RepoFullName] {
			continue
		}
		seen[doc.RepoFullName] = true
		ranked = append(ranked, RankedResult{
			RepoFullName: doc.RepoFullName,
			Score:        fused[pos],
			Excerpt:      doc.Content,
		})
		if len(ranked) == k {
			break
		}
	}
	return ranked, nil
}

func openDB(dir string) (*chromem.DB, error) {
	if dir == "" {
		return chromem.NewDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, chromemSubdir), false)
	if err != nil {
		return nil, fmt.Errorf("creating persistent vector store: %w", err)
	}
	return db, nil
}

func embeddingFunc(embedder Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}

func writeDocuments(dir string, docs []Document) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encoding documents: %w", err)
	}
	path := filepath.Join(dir, documentsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func readDocuments(dir string) ([]Document, error) {
	path := filepath.Join(dir, documentsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return docs, nil
}
