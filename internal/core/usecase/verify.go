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

// neutralConfidence is returned when the answer contains nothing checkable:
// with zero claims there is nothing to falsify.
const neutralConfidence = 0.9

// Verifier extracts factual claims from a generated answer and checks each
// against the assembled context the answer was generated from.
type Verifier struct {
	model     ports.CompletionModel
	timeout   time.Duration
	threshold float64
}

func NewVerifier(model ports.CompletionModel, timeout time.Duration, threshold float64) *Verifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &Verifier{model: model, timeout: timeout, threshold: threshold}
}

func (v *Verifier) Threshold() float64 { return v.threshold }

// Verify labels each claim and computes the grounding confidence. When the
// judge is unavailable the result is a neutral pass marked FromFallback, so
// a missing judge never blocks an answer.
func (v *Verifier) Verify(ctx context.Context, query, answer string, assembled domain.AssembledContext) domain.VerificationResult {
	if v.model == nil || strings.TrimSpace(answer) == "" {
		return fallbackVerification()
	}

	judgeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	raw, err := v.model.CompleteJSON(judgeCtx, ports.ModelBest, buildVerifyPrompt(query, answer, assembled.Text))
	if err != nil {
		slog.Warn("judge_fallback", "stage", "verify", "error", err)
		return fallbackVerification()
	}

	claims, corrections, err := parseClaims(raw)
	if err != nil {
		slog.Warn("judge_fallback", "stage", "verify", "error", err)
		return fallbackVerification()
	}

	confidence := scoreConfidence(claims)
	return domain.VerificationResult{
		Confidence:           confidence,
		IsGrounded:           confidence >= v.threshold,
		Claims:               claims,
		SuggestedCorrections: corrections,
	}
}

func parseClaims(raw string) ([]domain.Claim, []string, error) {
	var decoded struct {
		Claims []struct {
			Text      string `json:"text"`
			Status    string `json:"status"`
			Evidence  string `json:"evidence"`
			Reasoning string `json:"reasoning"`
		} `json:"claims"`
		SuggestedCorrections []string `json:"suggested_corrections"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &decoded); err != nil {
		return nil, nil, domain.WrapError(domain.ErrJudgeUnavailable, "parse claims", err)
	}

	claims := make([]domain.Claim, 0, len(decoded.Claims))
	for _, c := range decoded.Claims {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		claims = append(claims, domain.Claim{
			Text:      text,
			Status:    normalizeClaimStatus(c.Status),
			Evidence:  strings.TrimSpace(c.Evidence),
			Reasoning: strings.TrimSpace(c.Reasoning),
		})
	}
	return claims, decoded.SuggestedCorrections, nil
}

func normalizeClaimStatus(raw string) domain.ClaimStatus {
	switch domain.ClaimStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.ClaimSupported:
		return domain.ClaimSupported
	case domain.ClaimPartiallySupported:
		return domain.ClaimPartiallySupported
	default:
		return domain.ClaimUnsupported
	}
}

// scoreConfidence: (supported + 0.5*partial)/total - 0.1*unsupported, plus a
// 0.1 bonus when nothing is unsupported, clamped to [0,1].
func scoreConfidence(claims []domain.Claim) float64 {
	total := len(claims)
	if total == 0 {
		return neutralConfidence
	}

	supported, partial, unsupported := 0, 0, 0
	for _, claim := range claims {
		switch claim.Status {
		case domain.ClaimSupported:
			supported++
		case domain.ClaimPartiallySupported:
			partial++
		default:
			unsupported++
		}
	}

	confidence := (float64(supported) + 0.5*float64(partial)) / float64(total)
	confidence -= 0.1 * float64(unsupported)
	if unsupported == 0 {
		confidence += 0.1
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func fallbackVerification() domain.VerificationResult {
	return domain.VerificationResult{
		Confidence:   neutralConfidence,
		IsGrounded:   true,
		Claims:       []domain.Claim{},
		FromFallback: true,
	}
}
