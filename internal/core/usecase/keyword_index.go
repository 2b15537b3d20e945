package usecase

import (
	"math"
	"sort"

	"github.com/groundctx/ragengine/internal/core/domain"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// keywordIndex is a per-request BM25 index over the candidate corpus.
// Workspace corpora are small, so building it fresh each request is cheaper
// than maintaining a persistent sparse index.
type keywordIndex struct {
	chunks    []domain.Chunk
	docTokens [][]string
	docFreq   map[string]int
	avgDocLen float64
}

func newKeywordIndex(chunks []domain.Chunk) *keywordIndex {
	idx := &keywordIndex{
		chunks:    chunks,
		docTokens: make([][]string, len(chunks)),
		docFreq:   make(map[string]int),
	}

	totalLen := 0
	for i, chunk := range chunks {
		tokens := tokenizeForKeyword(chunk.Text)
		idx.docTokens[i] = tokens
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			idx.docFreq[token]++
		}
	}
	if len(chunks) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	return idx
}

type keywordHit struct {
	chunk domain.Chunk
	score float64
	pos   int
}

// Search scores every indexed chunk against the query with the standard BM25
// formula and returns the top limit hits, ties broken by corpus position so
// repeated runs are reproducible.
func (idx *keywordIndex) Search(query string, limit int) []domain.Chunk {
	queryTokens := tokenizeForKeyword(query)
	if len(queryTokens) == 0 || len(idx.chunks) == 0 {
		return nil
	}

	n := float64(len(idx.chunks))
	hits := make([]keywordHit, 0, len(idx.chunks))
	for i := range idx.chunks {
		score := idx.scoreDoc(queryTokens, i, n)
		if score <= 0 {
			continue
		}
		hits = append(hits, keywordHit{chunk: idx.chunks[i], score: score, pos: i})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].pos < hits[b].pos
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]domain.Chunk, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.chunk)
	}
	return out
}

func (idx *keywordIndex) scoreDoc(queryTokens []string, doc int, n float64) float64 {
	tokens := idx.docTokens[doc]
	if len(tokens) == 0 {
		return 0
	}

	termFreq := make(map[string]int, len(tokens))
	for _, token := range tokens {
		termFreq[token]++
	}

	docLen := float64(len(tokens))
	lengthNorm := 1 - bm25B + bm25B*(docLen/idx.avgDocLen)

	score := 0.0
	for _, term := range queryTokens {
		tf := float64(termFreq[term])
		if tf == 0 {
			continue
		}
		df := float64(idx.docFreq[term])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		score += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*lengthNorm)
	}
	return score
}

// tokenizeForKeyword lowercases, splits on non-alphanumerics and drops stop
// words, matching the preprocessor's notion of content words.
func tokenizeForKeyword(s string) []string {
	tokens := splitAlphaNumLower(s)
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, stop := stopWords[token]; stop {
			continue
		}
		out = append(out, token)
	}
	return out
}
