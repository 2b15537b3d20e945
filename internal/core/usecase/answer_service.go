package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

const generateTimeout = 60 * time.Second

// VerifyAndCorrect checks a generated answer against its context and runs
// the bounded corrective loop when grounding confidence is too low. The
// exhausted loop is a result, not an error: the caller always receives the
// last answer with its true confidence.
func (p *Pipeline) VerifyAndCorrect(ctx context.Context, req ports.VerifyRequest) (*domain.VerifiedAnswer, error) {
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "verify and correct", fmt.Errorf("answer is required"))
	}

	verifyStart := time.Now()
	verification := p.verifier.Verify(ctx, req.Query, answer, req.Context)
	p.observeStage("verify", verifyStart)
	if verification.FromFallback {
		p.observeFallback("verify")
	}

	correctStart := time.Now()
	result := p.loop.Correct(ctx, req.Workspace, req.Query, answer, req.Context, verification)
	p.observeStage("correct", correctStart)

	p.publishVerification(ctx, req.Workspace, req.Query, result)
	return result, nil
}

// Answer is the composite ask path: retrieve, generate, verify, correct.
func (p *Pipeline) Answer(ctx context.Context, req ports.ContextRequest) (*domain.GroundedAnswer, error) {
	contextResult, err := p.GetRelevantContext(ctx, req)
	if err != nil {
		return nil, err
	}
	assembled := contextResult.Context
	if strings.TrimSpace(assembled.Text) == "" {
		return nil, domain.WrapError(domain.ErrNoContext, "answer", fmt.Errorf("no matching content in workspace"))
	}

	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	answer, err := p.model.Complete(genCtx, ports.ModelBest, buildAnswerPrompt(req.Query, assembled))
	cancel()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "generate answer", err)
	}
	answer = strings.TrimSpace(answer)

	if !p.opts.UseVerification {
		return &domain.GroundedAnswer{
			Answer:       answer,
			Confidence:   neutralConfidence,
			IsGrounded:   true,
			Sources:      assembled.Sources,
			Plan:         contextResult.Plan,
			Verification: fallbackVerification(),
			Degraded:     assembled.Degraded,
		}, nil
	}

	verified, err := p.VerifyAndCorrect(ctx, ports.VerifyRequest{
		Workspace: req.Workspace,
		Query:     req.Query,
		Answer:    answer,
		Context:   assembled,
	})
	if err != nil {
		return nil, err
	}

	return &domain.GroundedAnswer{
		Answer:       verified.FinalAnswer,
		Confidence:   verified.Verification.Confidence,
		IsGrounded:   verified.Verification.IsGrounded,
		Sources:      assembled.Sources,
		Plan:         contextResult.Plan,
		Verification: verified.Verification,
		Attempts:     verified.Attempts,
		Degraded:     assembled.Degraded,
	}, nil
}

func (p *Pipeline) publishVerification(ctx context.Context, workspace, query string, result *domain.VerifiedAnswer) {
	if p.events == nil {
		return
	}

	unsupported := 0
	for _, claim := range result.Verification.Claims {
		if claim.Status == domain.ClaimUnsupported {
			unsupported++
		}
	}

	event := domain.VerificationEvent{
		RequestID:         uuid.NewString(),
		Workspace:         workspace,
		Query:             query,
		Confidence:        result.Verification.Confidence,
		IsGrounded:        result.Verification.IsGrounded,
		Attempts:          len(result.Attempts),
		UnsupportedClaims: unsupported,
	}
	if err := p.events.PublishVerification(ctx, event); err != nil {
		slog.Warn("verification_event_publish_failed", "error", err)
	}
}
