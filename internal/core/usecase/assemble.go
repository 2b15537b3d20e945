package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/groundctx/ragengine/internal/core/domain"
)

const (
	defaultTokenBudget = 16384
	// A candidate's filename/title boost must clear this share of the search
	// terms before full-document reconstruction is attempted.
	fullDocumentMatchThreshold = 0.5
)

// Assembler turns ranked candidates into a bounded context block. It is
// deterministic and side-effect-free; no network calls.
type Assembler struct {
	filenameWeight float64
	titleWeight    float64
}

func NewAssembler(filenameWeight, titleWeight float64) *Assembler {
	if filenameWeight <= 0 {
		filenameWeight = 0.5
	}
	if titleWeight <= 0 {
		titleWeight = 0.25
	}
	return &Assembler{filenameWeight: filenameWeight, titleWeight: titleWeight}
}

// Assemble decides whole-document return vs chunk synthesis under the token
// budget. corpus is the workspace chunk list used for reconstruction; it may
// be nil, which disables the full-document path.
func (a *Assembler) Assemble(
	candidates []domain.RankedCandidate,
	plan domain.QueryPlan,
	searchTerms []string,
	corpus []domain.Chunk,
	tokenBudget int,
) domain.AssembledContext {
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}
	if len(candidates) == 0 {
		return domain.AssembledContext{Mode: domain.ModeSynthesized}
	}

	if plan.Strategy == domain.StrategyFullDocument && len(corpus) > 0 {
		top := candidates[0]
		matchRatio := nameMatchRatio(top.Chunk.Filename, searchTerms)
		if titleRatio := nameMatchRatio(top.Chunk.Title, searchTerms); titleRatio > matchRatio {
			matchRatio = titleRatio
		}
		if matchRatio >= fullDocumentMatchThreshold {
			if assembled, ok := a.assembleFullDocument(top.Chunk.DocumentID, corpus, tokenBudget); ok {
				return assembled
			}
		}
	}

	return a.assembleSynthesized(candidates, tokenBudget)
}

// assembleFullDocument reconstructs the source document by concatenating its
// chunks in offset order, deduplicating overlap. Returns false when the whole
// document does not fit the budget, in which case the caller falls back to
// chunk synthesis.
func (a *Assembler) assembleFullDocument(documentID string, corpus []domain.Chunk, tokenBudget int) (domain.AssembledContext, bool) {
	var docChunks []domain.Chunk
	for _, chunk := range corpus {
		if chunk.DocumentID == documentID {
			docChunks = append(docChunks, chunk)
		}
	}
	if len(docChunks) == 0 {
		return domain.AssembledContext{}, false
	}

	sort.SliceStable(docChunks, func(i, j int) bool {
		if docChunks[i].CharOffset != docChunks[j].CharOffset {
			return docChunks[i].CharOffset < docChunks[j].CharOffset
		}
		return docChunks[i].ChunkIndex < docChunks[j].ChunkIndex
	})

	var b strings.Builder
	writtenEnd := docChunks[0].CharOffset
	for _, chunk := range docChunks {
		text := chunk.Text
		if chunk.CharOffset < writtenEnd {
			overlap := writtenEnd - chunk.CharOffset
			if overlap >= len(text) {
				continue
			}
			text = text[overlap:]
		}
		b.WriteString(text)
		end := chunk.CharOffset + len(chunk.Text)
		if end > writtenEnd {
			writtenEnd = end
		}
	}

	text := b.String()
	tokens := estimateTokens(text)
	if tokens > tokenBudget {
		return domain.AssembledContext{}, false
	}

	first := docChunks[0]
	return domain.AssembledContext{
		Text:       text,
		TokenCount: tokens,
		Mode:       domain.ModeFullDocument,
		Sources: []domain.ContextSource{{
			DocumentID: first.DocumentID,
			Filename:   first.Filename,
			Title:      first.Title,
			ChunkCount: len(docChunks),
		}},
	}, true
}

// assembleSynthesized groups candidates by source document, orders groups by
// their best combined score, and appends chunks under source headers until
// the budget is exhausted. Chunks are never truncated mid-text.
func (a *Assembler) assembleSynthesized(candidates []domain.RankedCandidate, tokenBudget int) domain.AssembledContext {
	type sourceGroup struct {
		documentID string
		filename   string
		title      string
		best       float64
		chunks     []domain.RankedCandidate
	}

	groups := make(map[string]*sourceGroup)
	order := make([]string, 0)
	for _, cand := range candidates {
		group, ok := groups[cand.Chunk.DocumentID]
		if !ok {
			group = &sourceGroup{
				documentID: cand.Chunk.DocumentID,
				filename:   cand.Chunk.Filename,
				title:      cand.Chunk.Title,
				best:       cand.CombinedScore,
			}
			groups[cand.Chunk.DocumentID] = group
			order = append(order, cand.Chunk.DocumentID)
		}
		if cand.CombinedScore > group.best {
			group.best = cand.CombinedScore
		}
		group.chunks = append(group.chunks, cand)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return groups[order[i]].best > groups[order[j]].best
	})

	var b strings.Builder
	usedTokens := 0
	budgetFull := false
	var sources []domain.ContextSource
	seenChunks := make(map[string]struct{})

	for _, documentID := range order {
		if budgetFull {
			break
		}
		group := groups[documentID]
		header := sourceHeader(group.filename, group.title)
		appended := 0

		for _, cand := range group.chunks {
			if _, dup := seenChunks[cand.Chunk.ID]; dup {
				continue
			}
			block := cand.Chunk.Text
			blockTokens := estimateTokens(block)
			headerTokens := 0
			if appended == 0 {
				headerTokens = estimateTokens(header)
			}
			// Budget exhausted: stop at the chunk boundary, never truncate.
			if usedTokens+headerTokens+blockTokens > tokenBudget {
				budgetFull = true
				break
			}
			if appended == 0 {
				b.WriteString(header)
				usedTokens += headerTokens
			}
			b.WriteString(block)
			b.WriteString("\n\n")
			usedTokens += blockTokens
			seenChunks[cand.Chunk.ID] = struct{}{}
			appended++
		}

		if appended > 0 {
			sources = append(sources, domain.ContextSource{
				DocumentID: group.documentID,
				Filename:   group.filename,
				Title:      group.title,
				ChunkCount: appended,
			})
		}
	}

	return domain.AssembledContext{
		Text:       b.String(),
		TokenCount: usedTokens,
		Mode:       domain.ModeSynthesized,
		Sources:    sources,
	}
}

func sourceHeader(filename, title string) string {
	if title != "" && title != filename {
		return fmt.Sprintf("--- Source: %s (%s) ---\n", filename, title)
	}
	return fmt.Sprintf("--- Source: %s ---\n", filename)
}

// estimateTokens approximates tokens as chars/4. The budget only needs to be
// conservative, not exact.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}
