package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/groundctx/ragengine/internal/config"
	"github.com/groundctx/ragengine/internal/core/ports"
	"github.com/groundctx/ragengine/internal/core/usecase"
	"github.com/groundctx/ragengine/internal/infrastructure/corpus/postgres"
	"github.com/groundctx/ragengine/internal/infrastructure/events/nats"
	"github.com/groundctx/ragengine/internal/infrastructure/llm/ollama"
	"github.com/groundctx/ragengine/internal/infrastructure/resilience"
	"github.com/groundctx/ragengine/internal/infrastructure/vector/qdrant"
	"github.com/groundctx/ragengine/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.PipelineMetrics

	Pipeline *usecase.Pipeline

	closeFn func()
}

const serviceName = "ragengine-api"

func New(ctx context.Context, cfg config.Config) (*App, error) {
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	corpus := postgres.NewChunkRepository(db)
	if err := corpus.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	dependencyConfig := resilience.DefaultConfig()
	dependencyConfig.OnRetry = func(operation string, _ int, _ error) {
		pipelineMetrics.RecordDependencyRetry(serviceName, operation)
	}

	events, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(dependencyConfig),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	// Judge calls are single-shot: the pipeline has a heuristic fallback for
	// every stage, so retries would only add latency.
	model := ollama.New(cfg.OllamaURL, cfg.OllamaFastModel, cfg.OllamaBestModel, cfg.OllamaEmbedModel, ollama.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.JudgeConfig()),
	})
	vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		ResilienceExecutor: resilience.NewExecutor(dependencyConfig),
	})

	pipeline := usecase.NewPipeline(
		corpus,
		model,
		vectors,
		model,
		events,
		usecase.RetrieverConfig{
			TopKPerQuery:       cfg.TopKPerQuery,
			CandidateLimit:     cfg.CandidateLimit,
			FilenameBoost:      cfg.FilenameBoost,
			TitleBoost:         cfg.TitleBoost,
			MaxParallelQueries: cfg.MaxParallelQueries,
		},
		usecase.PipelineOptions{
			TokenBudget:         cfg.TokenBudget,
			TopKRerank:          cfg.RerankTopN,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxCRAGAttempts:     cfg.MaxCorrectionLoops,
			UsePlanning:         cfg.UsePlanning,
			UseHybridRerank:     cfg.UseHybridRerank,
			UseVerification:     cfg.UseVerification,
			Observer:            &stageObserver{metrics: pipelineMetrics, service: serviceName},
		},
	)

	return &App{
		Config:   cfg,
		Metrics:  pipelineMetrics,
		Pipeline: pipeline,

		closeFn: func() {
			events.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// stageObserver feeds pipeline stage telemetry into the metrics registry.
type stageObserver struct {
	metrics *metrics.PipelineMetrics
	service string
}

func (o *stageObserver) StageCompleted(stage string, duration time.Duration) {
	o.metrics.ObserveStage(o.service, stage, duration)
}

func (o *stageObserver) JudgeFallback(stage string) {
	o.metrics.RecordJudgeFallback(o.service, stage)
}

var _ ports.ContextProvider = (*usecase.Pipeline)(nil)
var _ ports.AnswerVerifier = (*usecase.Pipeline)(nil)
var _ ports.AnswerService = (*usecase.Pipeline)(nil)
var _ ports.PipelineObserver = (*stageObserver)(nil)
