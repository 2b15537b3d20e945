package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

const rrfK = 60

var (
	errEmptyQuery     = errors.New("no query probes")
	errAllIndexesDown = errors.New("vector and keyword search both unavailable")
)

// RetrieverConfig carries the retrieval tuning knobs. The boost weights are
// configuration, not frozen constants.
type RetrieverConfig struct {
	TopKPerQuery       int
	CandidateLimit     int
	FilenameBoost      float64
	TitleBoost         float64
	MaxParallelQueries int
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.TopKPerQuery <= 0 {
		out.TopKPerQuery = 10
	}
	if out.CandidateLimit <= 0 {
		out.CandidateLimit = 50
	}
	if out.FilenameBoost <= 0 {
		out.FilenameBoost = 0.5
	}
	if out.TitleBoost <= 0 {
		out.TitleBoost = 0.25
	}
	if out.MaxParallelQueries <= 0 {
		out.MaxParallelQueries = 8
	}
	return out
}

// HybridRetriever fans every expanded query (and the HyDE passage, when
// present) out to dense vector search and the per-request BM25 index, then
// merges the ranked lists with reciprocal rank fusion.
type HybridRetriever struct {
	embedder ports.Embedder
	vectors  ports.VectorStore
	cfg      RetrieverConfig
}

func NewHybridRetriever(embedder ports.Embedder, vectors ports.VectorStore, cfg RetrieverConfig) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg.normalize(),
	}
}

type retrievalOutcome struct {
	candidates   []domain.RankedCandidate
	vectorFailed bool
}

// Retrieve returns fused candidates ordered by score. If the vector side is
// unreachable the keyword results alone are returned and the outcome is
// flagged degraded; if both sides produce nothing retrievable it returns
// ErrNoContext.
func (r *HybridRetriever) Retrieve(
	ctx context.Context,
	workspace string,
	expansion domain.ExpansionResult,
	keyword *keywordIndex,
	searchTerms []string,
) (*retrievalOutcome, error) {
	probes := append([]string{}, expansion.ExpandedQueries...)
	if expansion.HypotheticalAnswer != "" {
		probes = append(probes, expansion.HypotheticalAnswer)
	}
	if len(probes) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errEmptyQuery)
	}

	var (
		mu           sync.Mutex
		vectorLists  [][]domain.Chunk
		keywordLists [][]domain.Chunk
		vectorErrs   int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.MaxParallelQueries)

	for _, probe := range probes {
		probe := probe
		group.Go(func() error {
			chunks, err := r.vectorSearch(groupCtx, workspace, probe)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				vectorErrs++
				slog.Warn("vector_search_failed", "error", err)
				return nil
			}
			vectorLists = append(vectorLists, chunks)
			return nil
		})
		group.Go(func() error {
			hits := keyword.Search(probe, r.cfg.TopKPerQuery)

			mu.Lock()
			defer mu.Unlock()
			keywordLists = append(keywordLists, hits)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	fused := fuseRRF(vectorLists, keywordLists)
	boostByNameMatch(fused, searchTerms, r.cfg.FilenameBoost, r.cfg.TitleBoost)
	sortCandidates(fused)

	if len(fused) > r.cfg.CandidateLimit {
		fused = fused[:r.cfg.CandidateLimit]
	}

	outcome := &retrievalOutcome{
		candidates:   fused,
		vectorFailed: vectorErrs == len(probes),
	}
	if len(fused) == 0 && outcome.vectorFailed {
		return nil, domain.WrapError(domain.ErrNoContext, "retrieve", errAllIndexesDown)
	}
	return outcome, nil
}

func (r *HybridRetriever) vectorSearch(ctx context.Context, workspace, probe string) ([]domain.Chunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, probe)
	if err != nil {
		return nil, err
	}
	return r.vectors.Search(ctx, workspace, vector, r.cfg.TopKPerQuery)
}

// fuseRRF merges ranked lists by chunk id with score += 1/(k + rank). Ranks,
// not raw scores, so cosine similarity and BM25 never need normalization.
func fuseRRF(vectorLists, keywordLists [][]domain.Chunk) []domain.RankedCandidate {
	type fusion struct {
		candidate domain.RankedCandidate
		firstSeen int
	}

	acc := make(map[string]*fusion)
	order := 0

	absorb := func(lists [][]domain.Chunk, fromVector bool) {
		for _, list := range lists {
			for rank, chunk := range list {
				entry, ok := acc[chunk.ID]
				if !ok {
					entry = &fusion{
						candidate: domain.RankedCandidate{
							Chunk:       chunk,
							VectorRank:  domain.UnrankedPosition,
							KeywordRank: domain.UnrankedPosition,
						},
						firstSeen: order,
					}
					acc[chunk.ID] = entry
					order++
				}
				entry.candidate.RRFScore += 1.0 / float64(rrfK+rank+1)
				if fromVector {
					if entry.candidate.VectorRank == domain.UnrankedPosition || rank < entry.candidate.VectorRank {
						entry.candidate.VectorRank = rank
					}
				} else {
					if entry.candidate.KeywordRank == domain.UnrankedPosition || rank < entry.candidate.KeywordRank {
						entry.candidate.KeywordRank = rank
					}
				}
			}
		}
	}

	absorb(vectorLists, true)
	absorb(keywordLists, false)

	entries := make([]*fusion, 0, len(acc))
	for _, entry := range acc {
		entry.candidate.CombinedScore = entry.candidate.RRFScore
		entries = append(entries, entry)
	}
	// First-seen order keeps equal-score fusion reproducible across runs.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].firstSeen < entries[j].firstSeen })

	out := make([]domain.RankedCandidate, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.candidate)
	}
	return out
}

// boostByNameMatch rewards candidates whose filename or title shares content
// words with the query. Filename outweighs title; this is what lets a
// document named after the query subject outrank a semantically similar but
// differently named one.
func boostByNameMatch(candidates []domain.RankedCandidate, searchTerms []string, filenameWeight, titleWeight float64) {
	if len(searchTerms) == 0 {
		return
	}
	for i := range candidates {
		fileRatio := nameMatchRatio(candidates[i].Chunk.Filename, searchTerms)
		titleRatio := nameMatchRatio(candidates[i].Chunk.Title, searchTerms)
		boost := filenameWeight*fileRatio + titleWeight*titleRatio
		candidates[i].CombinedScore = candidates[i].RRFScore + boost
	}
}

func nameMatchRatio(name string, searchTerms []string) float64 {
	if name == "" {
		return 0
	}
	name = strings.ToLower(name)
	matched := 0
	for _, term := range searchTerms {
		if strings.Contains(name, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(searchTerms))
}

func sortCandidates(candidates []domain.RankedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		if candidates[i].Chunk.DocumentID != candidates[j].Chunk.DocumentID {
			return candidates[i].Chunk.DocumentID < candidates[j].Chunk.DocumentID
		}
		if candidates[i].Chunk.ChunkIndex != candidates[j].Chunk.ChunkIndex {
			return candidates[i].Chunk.ChunkIndex < candidates[j].Chunk.ChunkIndex
		}
		return candidates[i].Chunk.Filename < candidates[j].Chunk.Filename
	})
}
