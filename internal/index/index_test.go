package index

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEmbedder produces deterministic vectors from token hashes, so texts
// sharing tokens get similar vectors. Call counts verify when embedding
// work actually happens.
type fakeEmbedder struct {
	mu         sync.Mutex
	docCalls   int
	queryCalls int
}

const fakeDim = 32

func (f *fakeEmbedder) embed(text string) []float32 {
	v := make([]float32, fakeDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%fakeDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		norm = 1
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.docCalls++
	f.mu.Unlock()
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = f.embed(text)
	}
	return vectors, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queryCalls++
	f.mu.Unlock()
	return f.embed(text), nil
}

func testDocs() []Document {
	return []Document{
		{RepoFullName: "acme/hull-cuda", Content: "Fast convex hull computation on GPU with CUDA kernels", Stars: 200},
		{RepoFullName: "acme/chull-c", Content: "Convex hull algorithm in pure C, portable and CPU friendly", Stars: 90},
		{RepoFullName: "other/webapp", Content: "A web application framework with routing and templates", Stars: 500},
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	_, err := Build(context.Background(), nil, &fakeEmbedder{}, Config{}, "", nil)
	require.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestSearchHybridRanking(t *testing.T) {
	ctx := context.Background()
	idx, err := Build(ctx, testDocs(), &fakeEmbedder{}, Config{}, "", nil)
	require.NoError(t, err)

	ranked, err := idx.Search(ctx, "convex hull library in c for cpu", 3)
	require.NoError(t, err)
	require.NotEmpty(t, ranked)

	// The C/CPU variant matches the discriminating terms; the lexical
	// signal's dominant weight must put it ahead of the CUDA variant.
	require.Equal(t, "acme/chull-c", ranked[0].RepoFullName)
	require.NotEmpty(t, ranked[0].Excerpt)
	for i := 1; i < len(ranked); i++ {
		require.LessOrEqual(t, ranked[i].Score, ranked[i-1].Score)
	}
}

func TestSearchLexicalOnlySkipsEmbedding(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	idx, err := Build(ctx, testDocs(), embedder, Config{LexicalWeight: 1}, "", nil)
	require.NoError(t, err)

	queryCallsAfterBuild := embedder.queryCalls
	_, err = idx.Search(ctx, "convex hull", 3)
	require.NoError(t, err)
	require.Equal(t, queryCallsAfterBuild, embedder.queryCalls,
		"zero dense weight must not embed the query")
}

func TestSearchDeduplicatesByRepository(t *testing.T) {
	ctx := context.Background()
	docs := []Document{
		{RepoFullName: "acme/chull-c", Content: "convex hull in c"},
		{RepoFullName: "acme/chull-c", Content: "installation instructions and license"},
		{RepoFullName: "acme/hull-cuda", Content: "convex hull on gpu"},
	}
	idx, err := Build(ctx, docs, &fakeEmbedder{}, Config{}, "", nil)
	require.NoError(t, err)

	ranked, err := idx.Search(ctx, "convex hull c", 5)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, r := range ranked {
		seen[r.RepoFullName]++
	}
	for repo, n := range seen {
		require.Equal(t, 1, n, "repository %s appears %d times", repo, n)
	}
	// The best chunk, not the boilerplate one, is the excerpt.
	require.Equal(t, "acme/chull-c", ranked[0].RepoFullName)
	require.Contains(t, ranked[0].Excerpt, "convex hull")
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := &fakeEmbedder{}

	built, err := Build(ctx, testDocs(), embedder, Config{}, dir, nil)
	require.NoError(t, err)
	require.Equal(t, 1, embedder.docCalls)

	wantRanked, err := built.Search(ctx, "convex hull library in c for cpu", 3)
	require.NoError(t, err)

	loaded, err := Load(ctx, dir, embedder, Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, embedder.docCalls, "Load must not re-embed documents")
	require.Len(t, loaded.Documents(), len(testDocs()))

	gotRanked, err := loaded.Search(ctx, "convex hull library in c for cpu", 3)
	require.NoError(t, err)
	require.Equal(t, len(wantRanked), len(gotRanked))
	for i := range wantRanked {
		require.Equal(t, wantRanked[i].RepoFullName, gotRanked[i].RepoFullName)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), &fakeEmbedder{}, Config{}, nil)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	bad := Config{LexicalWeight: -1, DenseWeight: 1}
	require.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
