package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

// Planner classifies query intent with a single bounded fast-judge call.
// Judge failure is absorbed locally: the preprocessor result is mapped into a
// plan and the pipeline continues. The planner itself never retries; retries
// belong to the corrective loop.
type Planner struct {
	model   ports.CompletionModel
	timeout time.Duration
}

func NewPlanner(model ports.CompletionModel, timeout time.Duration) *Planner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Planner{model: model, timeout: timeout}
}

func (p *Planner) Plan(ctx context.Context, query string, pre domain.PreprocessResult) domain.QueryPlan {
	if p.model == nil {
		return fallbackPlan(pre)
	}

	judgeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.model.CompleteJSON(judgeCtx, ports.ModelFast, buildPlanPrompt(query, pre))
	if err != nil {
		slog.Warn("judge_fallback", "stage", "plan", "error", err)
		return fallbackPlan(pre)
	}

	plan, err := parsePlan(raw)
	if err != nil {
		slog.Warn("judge_fallback", "stage", "plan", "error", err)
		return fallbackPlan(pre)
	}

	// Heuristic hint beats a judge that missed an explicit lookup phrasing.
	if pre.IsDocumentRequest && plan.QueryType != domain.QueryDocumentLookup {
		plan.QueryType = domain.QueryDocumentLookup
		plan.Strategy = domain.StrategyFullDocument
	}
	if pre.DocumentHint != "" && !containsFold(plan.FilenameHints, pre.DocumentHint) {
		plan.FilenameHints = append(plan.FilenameHints, pre.DocumentHint)
	}
	return plan
}

// parsePlan treats every judge field as optional with a typed default.
func parsePlan(raw string) (domain.QueryPlan, error) {
	var decoded struct {
		QueryType     string   `json:"query_type"`
		Strategy      string   `json:"retrieval_strategy"`
		FilenameHints []string `json:"filename_hints"`
		AnswerStyle   string   `json:"answer_style"`
		Complexity    string   `json:"complexity"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return domain.QueryPlan{}, domain.WrapError(domain.ErrJudgeUnavailable, "parse plan", err)
	}

	plan := domain.QueryPlan{
		QueryType:     normalizeQueryType(decoded.QueryType),
		Strategy:      normalizeStrategy(decoded.Strategy),
		FilenameHints: decoded.FilenameHints,
		AnswerStyle:   strings.TrimSpace(decoded.AnswerStyle),
		Complexity:    strings.ToLower(strings.TrimSpace(decoded.Complexity)),
	}
	return plan, nil
}

func fallbackPlan(pre domain.PreprocessResult) domain.QueryPlan {
	plan := domain.QueryPlan{
		QueryType:    domain.QueryFactualQA,
		Strategy:     domain.StrategyHybrid,
		FromFallback: true,
	}
	if pre.IsDocumentRequest {
		plan.QueryType = domain.QueryDocumentLookup
		plan.Strategy = domain.StrategyFullDocument
		if pre.DocumentHint != "" {
			plan.FilenameHints = []string{pre.DocumentHint}
		}
	}
	return plan
}

func normalizeQueryType(raw string) domain.QueryType {
	switch domain.QueryType(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.QueryDocumentLookup:
		return domain.QueryDocumentLookup
	case domain.QueryProcedural:
		return domain.QueryProcedural
	case domain.QueryMultiStep:
		return domain.QueryMultiStep
	default:
		return domain.QueryFactualQA
	}
}

func normalizeStrategy(raw string) domain.RetrievalStrategy {
	switch domain.RetrievalStrategy(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.StrategyFullDocument:
		return domain.StrategyFullDocument
	case domain.StrategySemanticChunks:
		return domain.StrategySemanticChunks
	default:
		return domain.StrategyHybrid
	}
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
