package index

import (
	"math"
	"sort"
	"strings"
)

// BM25 parameters, the usual Robertson defaults.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// bm25Index is the lexical retrieval signal: a BM25 ranking over the
// document corpus, each Document treated as one unit. Read-only after
// construction.
type bm25Index struct {
	termFreqs []map[string]int // per-document term counts
	docFreq   map[string]int   // documents containing each term
	docLens   []int
	avgDocLen float64
}

func newBM25(docs []Document) *bm25Index {
	idx := &bm25Index{
		termFreqs: make([]map[string]int, len(docs)),
		docFreq:   make(map[string]int),
		docLens:   make([]int, len(docs)),
	}

	total := 0
	for i, doc := range docs {
		tokens := tokenize(doc.Content)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for term := range freqs {
			idx.docFreq[term]++
		}
		idx.termFreqs[i] = freqs
		idx.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}
	return idx
}

// lexicalHit is one scored document position.
type lexicalHit struct {
	docIdx int
	score  float64
}

// search returns the top-k documents by BM25 score, ties broken by
// insertion order.
func (idx *bm25Index) search(query string, k int) []lexicalHit {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(idx.termFreqs) == 0 {
		return nil
	}

	n := float64(len(idx.termFreqs))
	hits := make([]lexicalHit, 0, len(idx.termFreqs))
	for i, freqs := range idx.termFreqs {
		score := 0.0
		for _, term := range queryTerms {
			tf := freqs[term]
			if tf == 0 {
				continue
			}
			df := float64(idx.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - bm25B + bm25B*float64(idx.docLens[i])/idx.avgDocLen
			score += idf * float64(tf) * (bm25K1 + 1) / (float64(tf) + bm25K1*norm)
		}
		if score > 0 {
			hits = append(hits, lexicalHit{docIdx: i, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// stopwords. Single-letter tokens are kept: language names like "c" are
// exactly the technical terms the lexical signal exists to match.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphanumeric(r)
	})
	filtered := tokens[:0]
	for _, tok := range tokens {
		if !stopwords[tok] {
			filtered = append(filtered, tok)
		}
	}
	return filtered
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "its": true,
}
