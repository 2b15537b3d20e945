package usecase

import (
	"fmt"
	"strings"

	"github.com/groundctx/ragengine/internal/core/domain"
)

func buildPlanPrompt(query string, pre domain.PreprocessResult) string {
	hint := pre.DocumentHint
	if hint == "" {
		hint = "(none)"
	}
	return fmt.Sprintf(`You classify queries for a retrieval pipeline.
Return ONLY a strict JSON object with keys:
query_type ("document_lookup"|"factual_qa"|"procedural"|"multi_step"),
retrieval_strategy ("full_document"|"semantic_chunks"|"hybrid"),
filename_hints (array of strings), answer_style (string), complexity ("low"|"medium"|"high").
No markdown, no extra keys.

Heuristic document hint: %s

Query:
%s
`, hint, query)
}

func buildExpansionPrompt(query string, plan domain.QueryPlan, withHyde bool) string {
	hydeLine := ""
	if withHyde {
		hydeLine = "\nhypothetical_answer: a 2-3 sentence passage that would plausibly answer the query, written as if quoted from a document."
	}
	return fmt.Sprintf(`You expand a search query for hybrid retrieval.
Return ONLY a strict JSON object with keys:
expanded_queries (5 to 7 paraphrases of the query, each a full question or statement),
key_entities (array of strings), filename_patterns (array of likely file name fragments).%s
No markdown, no extra keys.

Query type: %s

Query:
%s
`, hydeLine, plan.QueryType, query)
}

func buildRerankPrompt(query string, candidates []domain.RankedCandidate) string {
	var b strings.Builder
	for i, cand := range candidates {
		text := cand.Chunk.Text
		if len(text) > 800 {
			text = text[:800]
		}
		fmt.Fprintf(&b, "[%d] file=%s\n%s\n\n", i+1, cand.Chunk.Filename, text)
	}
	return fmt.Sprintf(`Score each passage 0-10 for whether it actually answers the query, not just shares its topic.
Return ONLY a strict JSON object: {"scores": [array of numbers, one per passage, in order]}.
No markdown, no extra keys.

Query:
%s

Passages:
%s`, query, b.String())
}

func buildVerifyPrompt(query, answer, contextText string) string {
	return fmt.Sprintf(`You check a generated answer against its source context.
Extract each discrete factual claim from the answer. For every claim, search the context for supporting evidence.
Label each claim "supported", "partially_supported" or "unsupported", quoting the evidence snippet when found.
Be conservative: a statement that information is absent ("I don't have data on X") is not a claim.
Return ONLY a strict JSON object:
{"claims":[{"text":"...","status":"supported|partially_supported|unsupported","evidence":"...","reasoning":"..."}],"suggested_corrections":["..."]}
No markdown, no extra keys.

Query:
%s

Answer:
%s

Context:
%s
`, query, answer, contextText)
}

func buildCorrectiveQueryPrompt(claim domain.Claim) string {
	return fmt.Sprintf(`Write one short search query that would find evidence for this claim.
Return ONLY the query text, nothing else.

Claim:
%s
`, claim.Text)
}

func buildAnswerPrompt(query string, assembled domain.AssembledContext) string {
	return fmt.Sprintf(`Answer the user question only from the context below.
Cite facts plainly; if the context is insufficient, say so directly.

Question:
%s

Context:
%s
`, query, assembled.Text)
}

func buildRegeneratePrompt(query, previousAnswer string, unsupported []domain.Claim, assembled domain.AssembledContext) string {
	var claims strings.Builder
	for _, claim := range unsupported {
		fmt.Fprintf(&claims, "- %s\n", claim.Text)
	}
	return fmt.Sprintf(`Rewrite the answer so every statement is supported by the context below.
The previous answer contained claims the context does not support:
%s
Drop or correct them. If the context still lacks the information, say so directly.

Question:
%s

Previous answer:
%s

Context:
%s
`, claims.String(), query, previousAnswer, assembled.Text)
}

// extractJSONObject tolerates markdown code fences and chatter around the
// model's JSON by cutting from the first "{" to the last "}".
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
