package ports

import (
	"context"
	"time"

	"github.com/groundctx/ragengine/internal/core/domain"
)

// ModelCategory selects a completion model by capability class, not identity.
// The concrete model id behind each category is configuration.
type ModelCategory string

const (
	ModelFast ModelCategory = "fast"
	ModelBest ModelCategory = "best"
)

// CompletionModel is the judge/generator capability. Complete returns plain
// text; CompleteJSON asks the model for a single JSON object.
type CompletionModel interface {
	Complete(ctx context.Context, category ModelCategory, prompt string) (string, error)
	CompleteJSON(ctx context.Context, category ModelCategory, prompt string) (string, error)
}

// Embedder builds dense vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs dense nearest-neighbour search. Payload carries chunk
// text and attribution so retrieval never needs a second read.
type VectorStore interface {
	Search(ctx context.Context, workspace string, queryVector []float32, limit int) ([]domain.Chunk, error)
}

// CorpusStore lists the indexed chunks of a workspace. It backs the
// per-request keyword index and full-document reconstruction.
type CorpusStore interface {
	ListChunks(ctx context.Context, workspace string) ([]domain.Chunk, error)
}

// EventPublisher emits verification audit events for offline review.
// Publishing is best-effort and never fails a request.
type EventPublisher interface {
	PublishVerification(ctx context.Context, event domain.VerificationEvent) error
}

// PipelineObserver receives per-stage telemetry from the pipeline.
// Implementations must be cheap and non-blocking; a nil observer disables
// recording entirely.
type PipelineObserver interface {
	StageCompleted(stage string, duration time.Duration)
	JudgeFallback(stage string)
}
