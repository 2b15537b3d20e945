package usecase

import (
	"testing"

	"github.com/groundctx/ragengine/internal/core/domain"
)

func testChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "c1", DocumentID: "doc-1", Filename: "auth.md", Text: "OAuth authentication uses signed tokens for every request."},
		{ID: "c2", DocumentID: "doc-1", Filename: "auth.md", ChunkIndex: 1, Text: "Session cookies are rotated hourly."},
		{ID: "c3", DocumentID: "doc-2", Filename: "deploy.md", Text: "Deployment requires a green pipeline and an approval."},
	}
}

func TestKeywordIndexSearchRanksTermMatchesFirst(t *testing.T) {
	idx := newKeywordIndex(testChunks())

	hits := idx.Search("how does oauth authentication work", 10)
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
	if hits[0].ID != "c1" {
		t.Fatalf("expected the oauth chunk first, got %s", hits[0].ID)
	}
}

func TestKeywordIndexSearchIgnoresStopWords(t *testing.T) {
	idx := newKeywordIndex(testChunks())

	// "the", "is", "what" carry no signal; only "authentication" should match.
	withNoise := idx.Search("what is the authentication", 10)
	clean := idx.Search("authentication", 10)

	if len(withNoise) != len(clean) {
		t.Fatalf("stop words changed the hit set: %d vs %d", len(withNoise), len(clean))
	}
	if len(withNoise) == 0 || withNoise[0].ID != clean[0].ID {
		t.Fatalf("stop words changed the ranking")
	}
}

func TestKeywordIndexSearchEmptyQuery(t *testing.T) {
	idx := newKeywordIndex(testChunks())
	if hits := idx.Search("", 10); hits != nil {
		t.Fatalf("expected nil for empty query, got %d hits", len(hits))
	}
	if hits := idx.Search("the is a", 10); hits != nil {
		t.Fatalf("expected nil for all-stop-word query, got %d hits", len(hits))
	}
}

func TestKeywordIndexSearchRespectsLimit(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "c1", Text: "redis cache layer"},
		{ID: "c2", Text: "redis cluster mode"},
		{ID: "c3", Text: "redis persistence settings"},
	}
	idx := newKeywordIndex(chunks)

	hits := idx.Search("redis", 2)
	if len(hits) != 2 {
		t.Fatalf("expected limit=2 respected, got %d", len(hits))
	}
}

func TestKeywordIndexTieBreakByCorpusPosition(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "first", Text: "kafka broker"},
		{ID: "second", Text: "kafka broker"},
	}
	idx := newKeywordIndex(chunks)

	hits := idx.Search("kafka", 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "first" {
		t.Fatalf("expected corpus-position tie-break, got %s first", hits[0].ID)
	}
}

func TestKeywordIndexEmptyCorpus(t *testing.T) {
	idx := newKeywordIndex(nil)
	if hits := idx.Search("anything", 5); hits != nil {
		t.Fatalf("expected nil for empty corpus")
	}
}
