package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

// CorrectiveLoop re-retrieves and regenerates when an answer's grounding
// confidence falls below the threshold. Each attempt is strictly sequential:
// it needs the previous verification's unsupported-claim list. The loop stops
// at maxAttempts regardless of outcome and the last answer is returned with
// its true confidence, never hidden.
type CorrectiveLoop struct {
	model       ports.CompletionModel
	retriever   *HybridRetriever
	corpus      ports.CorpusStore
	verifier    *Verifier
	tokenBudget int
	maxAttempts int
	genTimeout  time.Duration
}

func NewCorrectiveLoop(
	model ports.CompletionModel,
	retriever *HybridRetriever,
	corpus ports.CorpusStore,
	verifier *Verifier,
	tokenBudget int,
	maxAttempts int,
	genTimeout time.Duration,
) *CorrectiveLoop {
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	if genTimeout <= 0 {
		genTimeout = 60 * time.Second
	}
	return &CorrectiveLoop{
		model:       model,
		retriever:   retriever,
		corpus:      corpus,
		verifier:    verifier,
		tokenBudget: tokenBudget,
		maxAttempts: maxAttempts,
		genTimeout:  genTimeout,
	}
}

// Correct runs bounded corrective attempts starting from an already-verified
// answer. It returns the final answer, its verification, and the attempt
// trail.
func (l *CorrectiveLoop) Correct(
	ctx context.Context,
	workspace, query, answer string,
	assembled domain.AssembledContext,
	verification domain.VerificationResult,
) *domain.VerifiedAnswer {
	result := &domain.VerifiedAnswer{
		FinalAnswer:  answer,
		Verification: verification,
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if result.Verification.Confidence >= l.verifier.Threshold() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		queries := l.correctiveQueries(ctx, query, result.Verification)
		additional := l.retrieveAdditional(ctx, workspace, queries, assembled)
		if additional.Text != "" {
			assembled = mergeContext(assembled, additional)
		}

		regenerated := l.regenerate(ctx, query, result.FinalAnswer, result.Verification, assembled)
		if regenerated == "" {
			// Generation failed; re-verification of the same answer would not
			// move, so account the attempt and stop.
			result.Attempts = append(result.Attempts, domain.CRAGAttempt{
				AttemptNumber: attempt,
				Queries:       queries,
				Verification:  result.Verification,
			})
			break
		}

		reverified := l.verifier.Verify(ctx, query, regenerated, assembled)
		result.Attempts = append(result.Attempts, domain.CRAGAttempt{
			AttemptNumber:     attempt,
			Queries:           queries,
			AdditionalContext: additional.Text,
			RegeneratedAnswer: regenerated,
			Verification:      reverified,
		})

		// Each attempt strictly supersedes the previous answer.
		result.FinalAnswer = regenerated
		result.Verification = reverified
	}

	return result
}

// correctiveQueries derives one targeted query per unsupported claim, asking
// the fast judge to phrase it and falling back to the claim text itself.
func (l *CorrectiveLoop) correctiveQueries(ctx context.Context, query string, verification domain.VerificationResult) []string {
	queries := make([]string, 0, len(verification.Claims))
	for _, claim := range verification.Claims {
		if claim.Status != domain.ClaimUnsupported {
			continue
		}

		phrased := ""
		if l.model != nil {
			judgeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			raw, err := l.model.Complete(judgeCtx, ports.ModelFast, buildCorrectiveQueryPrompt(claim))
			cancel()
			if err != nil {
				slog.Warn("judge_fallback", "stage", "corrective_query", "error", err)
			} else {
				phrased = strings.TrimSpace(raw)
			}
		}
		if phrased == "" {
			phrased = claim.Text
		}
		queries = append(queries, phrased)
	}

	if len(queries) == 0 {
		queries = append(queries, query)
	}
	return queries
}

func (l *CorrectiveLoop) retrieveAdditional(ctx context.Context, workspace string, queries []string, existing domain.AssembledContext) domain.AssembledContext {
	chunks, err := l.corpus.ListChunks(ctx, workspace)
	if err != nil {
		slog.Warn("corrective_corpus_unavailable", "error", err)
		chunks = nil
	}
	keyword := newKeywordIndex(chunks)

	expansion := domain.ExpansionResult{ExpandedQueries: queries}
	outcome, err := l.retriever.Retrieve(ctx, workspace, expansion, keyword, nil)
	if err != nil {
		slog.Warn("corrective_retrieval_failed", "error", err)
		return domain.AssembledContext{}
	}

	// Corrective evidence only fills what the configured budget leaves after
	// the context already assembled.
	remaining := l.tokenBudget - existing.TokenCount
	if remaining <= 0 {
		return domain.AssembledContext{}
	}

	assembler := NewAssembler(0, 0)
	return assembler.assembleSynthesized(outcome.candidates, remaining)
}

func (l *CorrectiveLoop) regenerate(ctx context.Context, query, previous string, verification domain.VerificationResult, assembled domain.AssembledContext) string {
	if l.model == nil {
		return ""
	}

	unsupported := make([]domain.Claim, 0, len(verification.Claims))
	for _, claim := range verification.Claims {
		if claim.Status == domain.ClaimUnsupported {
			unsupported = append(unsupported, claim)
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, l.genTimeout)
	defer cancel()

	answer, err := l.model.Complete(genCtx, ports.ModelBest, buildRegeneratePrompt(query, previous, unsupported, assembled))
	if err != nil {
		slog.Warn("regeneration_failed", "error", err)
		return ""
	}
	return strings.TrimSpace(answer)
}

// mergeContext appends corrective evidence to the existing context. Existing
// evidence is never re-ranked away.
func mergeContext(existing, additional domain.AssembledContext) domain.AssembledContext {
	merged := existing
	if additional.Text == "" {
		return merged
	}
	if merged.Text != "" && !strings.HasSuffix(merged.Text, "\n") {
		merged.Text += "\n\n"
	}
	merged.Text += additional.Text
	merged.TokenCount += additional.TokenCount

	sources := make([]domain.ContextSource, len(existing.Sources))
	copy(sources, existing.Sources)
	known := make(map[string]int, len(sources))
	for i, source := range sources {
		known[source.DocumentID] = i
	}
	for _, source := range additional.Sources {
		if i, ok := known[source.DocumentID]; ok {
			sources[i].ChunkCount += source.ChunkCount
			continue
		}
		sources = append(sources, source)
	}
	merged.Sources = sources
	return merged
}
