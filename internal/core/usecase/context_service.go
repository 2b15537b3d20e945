package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

// PipelineOptions are the request-independent toggles of the pipeline. Each
// phase is independently switchable so the pipeline degrades to earlier,
// simpler behavior without code changes.
type PipelineOptions struct {
	TokenBudget         int
	TopKRerank          int
	ConfidenceThreshold float64
	MaxCRAGAttempts     int

	UsePlanning     bool // planner + expander judge calls
	UseHybridRerank bool // hybrid fan-out fusion + judge rerank
	UseVerification bool // verifier + corrective loop

	// Observer receives stage durations and judge-fallback events. Nil
	// disables stage telemetry.
	Observer ports.PipelineObserver
}

func (o PipelineOptions) normalize() PipelineOptions {
	out := o
	if out.TokenBudget <= 0 {
		out.TokenBudget = defaultTokenBudget
	}
	if out.TopKRerank <= 0 {
		out.TopKRerank = 20
	}
	if out.ConfidenceThreshold <= 0 || out.ConfidenceThreshold > 1 {
		out.ConfidenceThreshold = 0.7
	}
	if out.MaxCRAGAttempts < 0 {
		out.MaxCRAGAttempts = 2
	}
	return out
}

// Pipeline is the immutable per-process service object: every collaborator is
// injected at construction and no request mutates shared state.
type Pipeline struct {
	corpus    ports.CorpusStore
	model     ports.CompletionModel
	events    ports.EventPublisher
	planner   *Planner
	expander  *Expander
	retriever *HybridRetriever
	reranker  *Reranker
	assembler *Assembler
	verifier  *Verifier
	loop      *CorrectiveLoop
	observer  ports.PipelineObserver
	opts      PipelineOptions
}

func NewPipeline(
	corpus ports.CorpusStore,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	model ports.CompletionModel,
	events ports.EventPublisher,
	retrieverCfg RetrieverConfig,
	opts PipelineOptions,
) *Pipeline {
	opts = opts.normalize()
	retriever := NewHybridRetriever(embedder, vectors, retrieverCfg)
	verifier := NewVerifier(model, 0, opts.ConfidenceThreshold)
	retrieverCfg = retrieverCfg.normalize()

	return &Pipeline{
		corpus:    corpus,
		model:     model,
		events:    events,
		planner:   NewPlanner(model, 0),
		expander:  NewExpander(model, 0),
		retriever: retriever,
		reranker:  NewReranker(model, 0, opts.TopKRerank),
		assembler: NewAssembler(retrieverCfg.FilenameBoost, retrieverCfg.TitleBoost),
		verifier:  verifier,
		loop:      NewCorrectiveLoop(model, retriever, corpus, verifier, opts.TokenBudget, opts.MaxCRAGAttempts, 0),
		observer:  opts.Observer,
		opts:      opts,
	}
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.observer != nil {
		p.observer.StageCompleted(stage, time.Since(start))
	}
}

func (p *Pipeline) observeFallback(stage string) {
	if p.observer != nil {
		p.observer.JudgeFallback(stage)
	}
}

// GetRelevantContext runs preprocess, plan, expand, retrieve, rerank and
// assemble. Judge failures fall back to heuristics inside each stage; only
// total retrieval failure is an error.
func (p *Pipeline) GetRelevantContext(ctx context.Context, req ports.ContextRequest) (*ports.ContextResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get relevant context", fmt.Errorf("query is required"))
	}
	budget := req.TokenBudget
	if budget <= 0 {
		budget = p.opts.TokenBudget
	}

	start := time.Now()
	pre := Preprocess(query)

	var plan domain.QueryPlan
	var expansion domain.ExpansionResult
	if p.opts.UsePlanning {
		planStart := time.Now()
		plan = p.planner.Plan(ctx, pre.NormalizedQuery, pre)
		p.observeStage("plan", planStart)
		if plan.FromFallback {
			p.observeFallback("plan")
		}

		expandStart := time.Now()
		expansion = p.expander.Expand(ctx, pre, plan)
		p.observeStage("expand", expandStart)
		if expansion.FromFallback {
			p.observeFallback("expand")
		}
	} else {
		plan = fallbackPlan(pre)
		expansion = fallbackExpansion(pre)
	}
	if !p.opts.UseHybridRerank {
		// Earlier-phase behavior: a single dense+sparse probe, no judge
		// rerank. The fused ranking alone decides.
		expansion = domain.ExpansionResult{
			ExpandedQueries: []string{pre.NormalizedQuery},
			FromFallback:    expansion.FromFallback,
		}
	}

	chunks, corpusErr := p.corpus.ListChunks(ctx, req.Workspace)
	if corpusErr != nil {
		slog.Warn("corpus_unavailable", "workspace", req.Workspace, "error", corpusErr)
	}
	keyword := newKeywordIndex(chunks)

	retrieveStart := time.Now()
	outcome, err := p.retriever.Retrieve(ctx, req.Workspace, expansion, keyword, pre.SearchTerms)
	p.observeStage("retrieve", retrieveStart)
	if err != nil {
		return nil, err
	}

	candidates := outcome.candidates
	if p.opts.UseHybridRerank && deadlineRemains(ctx) {
		rerankStart := time.Now()
		reranked, judged := p.reranker.Rerank(ctx, pre.NormalizedQuery, candidates)
		p.observeStage("rerank", rerankStart)
		if !judged {
			p.observeFallback("rerank")
		}
		candidates = reranked
	}

	assembleStart := time.Now()
	assembled := p.assembler.Assemble(candidates, plan, pre.SearchTerms, chunks, budget)
	p.observeStage("assemble", assembleStart)
	if outcome.vectorFailed {
		assembled.Degraded = true
		assembled.Reason = "vector store unavailable, keyword-only results"
	}

	slog.Info("context_assembled",
		"workspace", req.Workspace,
		"mode", assembled.Mode,
		"sources", len(assembled.Sources),
		"tokens", assembled.TokenCount,
		"degraded", assembled.Degraded,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	return &ports.ContextResult{Context: assembled, Plan: plan}, nil
}

// deadlineRemains reports whether the request deadline still leaves room for
// an optional judge call. Past the deadline the pipeline short-circuits to
// the best context available instead of failing.
func deadlineRemains(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) > 500*time.Millisecond
}
