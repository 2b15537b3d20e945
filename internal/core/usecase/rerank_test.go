package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

type modelFake struct {
	completeFn func(category ports.ModelCategory, prompt string) (string, error)
	jsonFn     func(category ports.ModelCategory, prompt string) (string, error)

	completeCalls int
	jsonCalls     int
}

func (f *modelFake) Complete(_ context.Context, category ports.ModelCategory, prompt string) (string, error) {
	f.completeCalls++
	if f.completeFn == nil {
		return "", errors.New("no complete handler")
	}
	return f.completeFn(category, prompt)
}

func (f *modelFake) CompleteJSON(_ context.Context, category ports.ModelCategory, prompt string) (string, error) {
	f.jsonCalls++
	if f.jsonFn == nil {
		return "", errors.New("no json handler")
	}
	return f.jsonFn(category, prompt)
}

func rankedCandidates(scores ...float64) []domain.RankedCandidate {
	out := make([]domain.RankedCandidate, 0, len(scores))
	for i, score := range scores {
		out = append(out, domain.RankedCandidate{
			Chunk: domain.Chunk{
				ID:         string(rune('a' + i)),
				DocumentID: "doc-" + string(rune('a'+i)),
				Text:       "text",
			},
			RRFScore:      score,
			CombinedScore: score,
		})
	}
	return out
}

func TestRerankJudgeOverridesRetrievalOrder(t *testing.T) {
	model := &modelFake{
		jsonFn: func(_ ports.ModelCategory, _ string) (string, error) {
			return `{"scores": [1, 9]}`, nil
		},
	}
	reranker := NewReranker(model, 0, 20)

	out, judged := reranker.Rerank(context.Background(), "q", rankedCandidates(0.9, 0.1))
	if !judged {
		t.Fatalf("expected judge scores applied")
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	// 0.3*1.0 + 0.7*0.1 = 0.37 for the retrieval leader vs 0.3*0 + 0.7*0.9 =
	// 0.63 for the judge favorite.
	if out[0].Chunk.ID != "b" {
		t.Fatalf("expected judge favorite first, got %s", out[0].Chunk.ID)
	}
	if !out[0].JudgeScored || out[0].JudgeScore != 9 {
		t.Fatalf("expected judge score recorded, got %+v", out[0])
	}
}

func TestRerankIdentityFallbackOnJudgeError(t *testing.T) {
	model := &modelFake{
		jsonFn: func(_ ports.ModelCategory, _ string) (string, error) {
			return "", errors.New("judge down")
		},
	}
	reranker := NewReranker(model, 0, 20)

	in := rankedCandidates(0.9, 0.5, 0.1)
	out, judged := reranker.Rerank(context.Background(), "q", in)
	if judged {
		t.Fatalf("judge error must report the identity fallback")
	}
	for i := range in {
		if out[i].Chunk.ID != in[i].Chunk.ID {
			t.Fatalf("expected identity fallback, position %d changed", i)
		}
		if out[i].JudgeScored {
			t.Fatalf("fallback must not mark candidates judge-scored")
		}
	}
}

func TestRerankIdentityFallbackOnMalformedJSON(t *testing.T) {
	model := &modelFake{
		jsonFn: func(_ ports.ModelCategory, _ string) (string, error) {
			return "not json at all", nil
		},
	}
	reranker := NewReranker(model, 0, 20)

	in := rankedCandidates(0.9, 0.1)
	out, judged := reranker.Rerank(context.Background(), "q", in)
	if judged {
		t.Fatalf("malformed payload must report the identity fallback")
	}
	if out[0].Chunk.ID != in[0].Chunk.ID {
		t.Fatalf("expected identity fallback on parse failure")
	}
}

func TestRerankTailKeepsRetrievalOrder(t *testing.T) {
	model := &modelFake{
		jsonFn: func(_ ports.ModelCategory, _ string) (string, error) {
			return `{"scores": [2, 8]}`, nil
		},
	}
	reranker := NewReranker(model, 0, 2)

	out, _ := reranker.Rerank(context.Background(), "q", rankedCandidates(0.9, 0.8, 0.3, 0.2))
	if len(out) != 4 {
		t.Fatalf("expected all candidates returned, got %d", len(out))
	}
	if out[2].Chunk.ID != "c" || out[3].Chunk.ID != "d" {
		t.Fatalf("expected tail in retrieval order, got %s, %s", out[2].Chunk.ID, out[3].Chunk.ID)
	}
	if out[2].JudgeScored || out[3].JudgeScored {
		t.Fatalf("tail candidates must not be judge-scored")
	}
}

func TestParseRerankScoresPadsAndClamps(t *testing.T) {
	scores, err := parseRerankScores(`{"scores": [12, -3]}`, 3)
	if err != nil {
		t.Fatalf("parseRerankScores error = %v", err)
	}
	if scores[0] != 10 {
		t.Fatalf("expected clamp to 10, got %f", scores[0])
	}
	if scores[1] != 0 {
		t.Fatalf("expected clamp to 0, got %f", scores[1])
	}
	if scores[2] != 5 {
		t.Fatalf("expected neutral fill for missing score, got %f", scores[2])
	}
}

func TestRerankFencedJSONAccepted(t *testing.T) {
	model := &modelFake{
		jsonFn: func(_ ports.ModelCategory, _ string) (string, error) {
			return "```json\n{\"scores\": [3, 7]}\n```", nil
		},
	}
	reranker := NewReranker(model, 0, 20)

	out, _ := reranker.Rerank(context.Background(), "q", rankedCandidates(0.6, 0.4))
	if !out[0].JudgeScored {
		t.Fatalf("expected fenced judge payload to be parsed")
	}
}
