package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/groundctx/ragengine/internal/core/domain"
)

type embedderFake struct {
	err   error
	calls int
}

func (f *embedderFake) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type vectorFake struct {
	chunks []domain.Chunk
	err    error
}

func (f *vectorFake) Search(_ context.Context, _ string, _ []float32, limit int) ([]domain.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.chunks) > limit {
		return f.chunks[:limit], nil
	}
	return f.chunks, nil
}

func singleQueryExpansion(query string) domain.ExpansionResult {
	return domain.ExpansionResult{ExpandedQueries: []string{query}}
}

func TestRetrieveFusesVectorAndKeywordResults(t *testing.T) {
	vectorChunks := []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Filename: "auth.md", Text: "oauth tokens"},
		{ID: "c2", DocumentID: "doc-2", Filename: "deploy.md", Text: "deployment steps"},
	}
	keywordCorpus := []domain.Chunk{
		{ID: "c2", DocumentID: "doc-2", Filename: "deploy.md", Text: "deployment steps"},
		{ID: "c3", DocumentID: "doc-3", Filename: "cache.md", Text: "deployment of the cache"},
	}

	retriever := NewHybridRetriever(&embedderFake{}, &vectorFake{chunks: vectorChunks}, RetrieverConfig{})
	outcome, err := retriever.Retrieve(
		context.Background(),
		"ws",
		singleQueryExpansion("deployment"),
		newKeywordIndex(keywordCorpus),
		nil,
	)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if outcome.vectorFailed {
		t.Fatalf("unexpected degraded outcome")
	}
	if len(outcome.candidates) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(outcome.candidates))
	}
	// c2 appears on both sides; its RRF score must exceed either single side.
	if outcome.candidates[0].Chunk.ID != "c2" {
		t.Fatalf("expected dual-ranked chunk first, got %s", outcome.candidates[0].Chunk.ID)
	}
	if outcome.candidates[0].VectorRank == domain.UnrankedPosition || outcome.candidates[0].KeywordRank == domain.UnrankedPosition {
		t.Fatalf("expected both ranks recorded for fused chunk")
	}
}

func TestRetrieveRRFUsesRanksNotScores(t *testing.T) {
	// Two single-entry lists produce identical RRF contributions regardless of
	// any underlying engine score, so ordering falls to the tie-break chain.
	vector := []domain.Chunk{{ID: "v", DocumentID: "doc-b", Filename: "b.md", Text: "beta"}}
	keyword := []domain.Chunk{{ID: "k", DocumentID: "doc-a", Filename: "a.md", Text: "alpha"}}

	retriever := NewHybridRetriever(&embedderFake{}, &vectorFake{chunks: vector}, RetrieverConfig{})
	outcome, err := retriever.Retrieve(
		context.Background(),
		"ws",
		singleQueryExpansion("alpha"),
		newKeywordIndex(keyword),
		nil,
	)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(outcome.candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(outcome.candidates))
	}
	if outcome.candidates[0].RRFScore != outcome.candidates[1].RRFScore {
		t.Fatalf("expected equal RRF scores for rank-1 entries, got %f vs %f",
			outcome.candidates[0].RRFScore, outcome.candidates[1].RRFScore)
	}
	if outcome.candidates[0].Chunk.DocumentID != "doc-a" {
		t.Fatalf("expected document-id tie-break, got %s first", outcome.candidates[0].Chunk.DocumentID)
	}
}

func TestRetrieveFilenameBoostPrefersNamedDocument(t *testing.T) {
	// The mixed collection wins the raw vector ranking; only the filename
	// match separates the dedicated biography from a document that merely
	// mentions the subject.
	vector := []domain.Chunk{
		{ID: "mixed", DocumentID: "doc-mixed", Filename: "author-bios.md", Text: "Rajiv Pant appears among other authors."},
		{ID: "bio", DocumentID: "doc-bio", Filename: "rajiv-pant-biography.md", Text: "Rajiv Pant is a technology executive."},
	}

	retriever := NewHybridRetriever(&embedderFake{}, &vectorFake{chunks: vector}, RetrieverConfig{})
	outcome, err := retriever.Retrieve(
		context.Background(),
		"ws",
		singleQueryExpansion("rajiv pant biography"),
		newKeywordIndex(nil),
		[]string{"rajiv", "pant", "biography"},
	)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if outcome.candidates[0].Chunk.ID != "bio" {
		t.Fatalf("expected boosted biography first, got %s", outcome.candidates[0].Chunk.ID)
	}
	if outcome.candidates[0].CombinedScore <= outcome.candidates[0].RRFScore {
		t.Fatalf("expected filename boost applied on top of RRF score")
	}
}

func TestRetrieveKeywordOnlyWhenVectorDown(t *testing.T) {
	corpus := []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Filename: "notes.md", Text: "incident postmortem notes"},
	}

	retriever := NewHybridRetriever(&embedderFake{err: errors.New("embedder down")}, &vectorFake{}, RetrieverConfig{})
	outcome, err := retriever.Retrieve(
		context.Background(),
		"ws",
		singleQueryExpansion("postmortem"),
		newKeywordIndex(corpus),
		nil,
	)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !outcome.vectorFailed {
		t.Fatalf("expected degraded outcome when every vector probe fails")
	}
	if len(outcome.candidates) != 1 || outcome.candidates[0].Chunk.ID != "c1" {
		t.Fatalf("expected keyword-only result, got %+v", outcome.candidates)
	}
}

func TestRetrieveNoContextWhenEverythingFails(t *testing.T) {
	retriever := NewHybridRetriever(&embedderFake{err: errors.New("down")}, &vectorFake{}, RetrieverConfig{})
	_, err := retriever.Retrieve(
		context.Background(),
		"ws",
		singleQueryExpansion("anything"),
		newKeywordIndex(nil),
		nil,
	)
	if !domain.IsKind(err, domain.ErrNoContext) {
		t.Fatalf("expected ErrNoContext, got %v", err)
	}
}

func TestRetrieveEmptyExpansionRejected(t *testing.T) {
	retriever := NewHybridRetriever(&embedderFake{}, &vectorFake{}, RetrieverConfig{})
	_, err := retriever.Retrieve(context.Background(), "ws", domain.ExpansionResult{}, newKeywordIndex(nil), nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRetrieveCandidateLimit(t *testing.T) {
	var corpus []domain.Chunk
	for i := 0; i < 10; i++ {
		corpus = append(corpus, domain.Chunk{
			ID:         string(rune('a' + i)),
			DocumentID: "doc",
			ChunkIndex: i,
			Text:       "shared topic words here",
		})
	}

	retriever := NewHybridRetriever(
		&embedderFake{err: errors.New("down")},
		&vectorFake{},
		RetrieverConfig{CandidateLimit: 3},
	)
	outcome, err := retriever.Retrieve(
		context.Background(),
		"ws",
		singleQueryExpansion("shared topic"),
		newKeywordIndex(corpus),
		nil,
	)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(outcome.candidates) != 3 {
		t.Fatalf("expected candidate limit applied, got %d", len(outcome.candidates))
	}
}

func TestFuseRRFOrderInvariant(t *testing.T) {
	// Which retrieval method contributed which list must not matter: fusing
	// the same ranked lists with the sides swapped yields the same final
	// ranking and the same scores.
	listA := []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Filename: "a.md", Text: "alpha"},
		{ID: "c2", DocumentID: "doc-2", Filename: "b.md", Text: "beta"},
		{ID: "c3", DocumentID: "doc-3", Filename: "c.md", Text: "gamma"},
	}
	listB := []domain.Chunk{
		{ID: "c3", DocumentID: "doc-3", Filename: "c.md", Text: "gamma"},
		{ID: "c4", DocumentID: "doc-4", Filename: "d.md", Text: "delta"},
		{ID: "c1", DocumentID: "doc-1", Filename: "a.md", Text: "alpha"},
	}

	forward := fuseRRF([][]domain.Chunk{listA}, [][]domain.Chunk{listB})
	sortCandidates(forward)
	swapped := fuseRRF([][]domain.Chunk{listB}, [][]domain.Chunk{listA})
	sortCandidates(swapped)

	if len(forward) != len(swapped) {
		t.Fatalf("candidate counts diverged: %d vs %d", len(forward), len(swapped))
	}
	for i := range forward {
		if forward[i].Chunk.ID != swapped[i].Chunk.ID {
			t.Fatalf("ranking changed with swapped sides at position %d: %s vs %s",
				i, forward[i].Chunk.ID, swapped[i].Chunk.ID)
		}
		if forward[i].RRFScore != swapped[i].RRFScore {
			t.Fatalf("score changed with swapped sides for %s: %f vs %f",
				forward[i].Chunk.ID, forward[i].RRFScore, swapped[i].RRFScore)
		}
	}
}

func TestFuseRRFMoreListsNeverLowerScore(t *testing.T) {
	chunk := domain.Chunk{ID: "c", DocumentID: "doc", Text: "t"}
	one := fuseRRF([][]domain.Chunk{{chunk}}, nil)
	two := fuseRRF([][]domain.Chunk{{chunk}, {chunk}}, nil)
	if len(one) != 1 || len(two) != 1 {
		t.Fatalf("expected deduplication to one candidate")
	}
	if two[0].RRFScore <= one[0].RRFScore {
		t.Fatalf("appearing in more lists must not lower the score: %f vs %f", two[0].RRFScore, one[0].RRFScore)
	}
}
