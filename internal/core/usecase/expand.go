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

const maxExpandedQueries = 7

// Expander generates paraphrases and, for chunk-oriented strategies, a
// hypothetical answer passage (HyDE) that bridges question/answer vocabulary.
// On judge failure the pipeline still works with the normalized query plus
// simple term variations.
type Expander struct {
	model   ports.CompletionModel
	timeout time.Duration
}

func NewExpander(model ports.CompletionModel, timeout time.Duration) *Expander {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Expander{model: model, timeout: timeout}
}

func (e *Expander) Expand(ctx context.Context, pre domain.PreprocessResult, plan domain.QueryPlan) domain.ExpansionResult {
	if e.model == nil {
		return fallbackExpansion(pre)
	}

	withHyde := plan.Strategy == domain.StrategySemanticChunks || plan.Strategy == domain.StrategyHybrid

	judgeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.model.CompleteJSON(judgeCtx, ports.ModelFast, buildExpansionPrompt(pre.NormalizedQuery, plan, withHyde))
	if err != nil {
		slog.Warn("judge_fallback", "stage", "expand", "error", err)
		return fallbackExpansion(pre)
	}

	result, err := parseExpansion(raw, pre)
	if err != nil {
		slog.Warn("judge_fallback", "stage", "expand", "error", err)
		return fallbackExpansion(pre)
	}
	if !withHyde {
		result.HypotheticalAnswer = ""
	}
	return result
}

func parseExpansion(raw string, pre domain.PreprocessResult) (domain.ExpansionResult, error) {
	var decoded struct {
		ExpandedQueries    []string `json:"expanded_queries"`
		HypotheticalAnswer string   `json:"hypothetical_answer"`
		KeyEntities        []string `json:"key_entities"`
		FilenamePatterns   []string `json:"filename_patterns"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return domain.ExpansionResult{}, domain.WrapError(domain.ErrJudgeUnavailable, "parse expansion", err)
	}

	queries := dedupeNonEmpty(append([]string{pre.NormalizedQuery}, decoded.ExpandedQueries...))
	if len(queries) > maxExpandedQueries {
		queries = queries[:maxExpandedQueries]
	}

	return domain.ExpansionResult{
		ExpandedQueries:    queries,
		HypotheticalAnswer: strings.TrimSpace(decoded.HypotheticalAnswer),
		KeyEntities:        dedupeNonEmpty(decoded.KeyEntities),
		FilenamePatterns:   dedupeNonEmpty(decoded.FilenamePatterns),
	}, nil
}

// fallbackExpansion derives cheap variations from the search terms so hybrid
// retrieval still has more than one probe.
func fallbackExpansion(pre domain.PreprocessResult) domain.ExpansionResult {
	queries := []string{pre.NormalizedQuery}
	if len(pre.SearchTerms) > 0 {
		queries = append(queries, strings.Join(pre.SearchTerms, " "))
	}
	if pre.DocumentHint != "" {
		queries = append(queries, pre.DocumentHint)
	}

	return domain.ExpansionResult{
		ExpandedQueries: dedupeNonEmpty(queries),
		KeyEntities:     pre.SearchTerms,
		FromFallback:    true,
	}
}

func dedupeNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
