package ports

import (
	"context"

	"github.com/groundctx/ragengine/internal/core/domain"
)

// ContextRequest carries one retrieval request. Zero option values fall back
// to configured defaults.
type ContextRequest struct {
	Workspace   string
	Query       string
	TokenBudget int
}

// ContextResult is what the retrieval pipeline offers upward.
type ContextResult struct {
	Context domain.AssembledContext
	Plan    domain.QueryPlan
}

// ContextProvider is the primary inbound contract: retrieve, rank and
// assemble grounded context for a query.
type ContextProvider interface {
	GetRelevantContext(ctx context.Context, req ContextRequest) (*ContextResult, error)
}

// VerifyRequest asks for a generated answer to be checked against the
// context it was generated from.
type VerifyRequest struct {
	Workspace string
	Query     string
	Answer    string
	Context   domain.AssembledContext
}

// AnswerVerifier is the secondary inbound contract: verify an answer's
// grounding and correct it within the configured attempt bound.
type AnswerVerifier interface {
	VerifyAndCorrect(ctx context.Context, req VerifyRequest) (*domain.VerifiedAnswer, error)
}

// AnswerService runs the full ask path: retrieve, generate, verify, correct.
type AnswerService interface {
	Answer(ctx context.Context, req ContextRequest) (*domain.GroundedAnswer, error)
}
