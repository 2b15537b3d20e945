package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

const (
	rerankRetrievalWeight = 0.3
	rerankJudgeWeight     = 0.7
)

// Reranker asks the judge to score the top slice of candidates for true
// relevance, blending the judge score with the normalized retrieval score.
// Candidates past the slice keep their retrieval order and are appended after
// the reranked head. Judge failure is an identity fallback.
type Reranker struct {
	model   ports.CompletionModel
	timeout time.Duration
	topN    int
}

func NewReranker(model ports.CompletionModel, timeout time.Duration, topN int) *Reranker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if topN <= 0 {
		topN = 20
	}
	return &Reranker{model: model, timeout: timeout, topN: topN}
}

// Rerank returns the reordered candidates and whether judge scores were
// actually applied; false means the identity fallback.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RankedCandidate) ([]domain.RankedCandidate, bool) {
	if len(candidates) == 0 || r.model == nil {
		return candidates, false
	}

	topN := r.topN
	if topN > len(candidates) {
		topN = len(candidates)
	}
	head := make([]domain.RankedCandidate, topN)
	copy(head, candidates[:topN])

	judgeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.model.CompleteJSON(judgeCtx, ports.ModelFast, buildRerankPrompt(query, head))
	if err != nil {
		slog.Warn("judge_fallback", "stage", "rerank", "error", err)
		return candidates, false
	}
	scores, err := parseRerankScores(raw, topN)
	if err != nil {
		slog.Warn("judge_fallback", "stage", "rerank", "error", err)
		return candidates, false
	}

	minScore, maxScore := head[0].CombinedScore, head[0].CombinedScore
	for _, cand := range head[1:] {
		if cand.CombinedScore < minScore {
			minScore = cand.CombinedScore
		}
		if cand.CombinedScore > maxScore {
			maxScore = cand.CombinedScore
		}
	}
	scoreRange := maxScore - minScore

	for i := range head {
		normalized := 0.0
		if scoreRange > 0 {
			normalized = (head[i].CombinedScore - minScore) / scoreRange
		} else if head[i].CombinedScore > 0 {
			normalized = 1.0
		}
		head[i].JudgeScore = scores[i]
		head[i].JudgeScored = true
		head[i].CombinedScore = rerankRetrievalWeight*normalized + rerankJudgeWeight*(scores[i]/10.0)
	}

	sortCandidates(head)

	if topN == len(candidates) {
		return head, true
	}
	out := make([]domain.RankedCandidate, 0, len(candidates))
	out = append(out, head...)
	out = append(out, candidates[topN:]...)
	return out, true
}

func parseRerankScores(raw string, want int) ([]float64, error) {
	var decoded struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return nil, domain.WrapError(domain.ErrJudgeUnavailable, "parse rerank scores", err)
	}

	// Tolerate short or noisy score arrays: missing entries score neutral,
	// out-of-range entries clamp.
	scores := make([]float64, want)
	for i := range scores {
		score := 5.0
		if i < len(decoded.Scores) {
			score = decoded.Scores[i]
		}
		if score < 0 {
			score = 0
		}
		if score > 10 {
			score = 10
		}
		scores[i] = score
	}
	return scores, nil
}
