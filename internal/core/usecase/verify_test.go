package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

func claimsOf(statuses ...domain.ClaimStatus) []domain.Claim {
	out := make([]domain.Claim, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, domain.Claim{Text: "claim", Status: status})
	}
	return out
}

func TestScoreConfidence(t *testing.T) {
	cases := []struct {
		name   string
		claims []domain.Claim
		want   float64
	}{
		{"no claims is neutral", nil, neutralConfidence},
		{"all supported gets bonus", claimsOf(domain.ClaimSupported, domain.ClaimSupported), 1.0},
		{"single unsupported", claimsOf(domain.ClaimUnsupported), 0.0},
		{"mixed", claimsOf(domain.ClaimSupported, domain.ClaimUnsupported), 0.4},
		{"partial counts half", claimsOf(domain.ClaimPartiallySupported, domain.ClaimPartiallySupported), 0.6},
		{"supported and partial", claimsOf(domain.ClaimSupported, domain.ClaimPartiallySupported), 0.85},
	}
	for _, tc := range cases {
		got := scoreConfidence(tc.claims)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s: scoreConfidence = %f, want %f", tc.name, got, tc.want)
		}
	}
}

func TestScoreConfidenceAlwaysInRange(t *testing.T) {
	statuses := []domain.ClaimStatus{domain.ClaimSupported, domain.ClaimPartiallySupported, domain.ClaimUnsupported}
	for s := 0; s <= 4; s++ {
		for p := 0; p <= 4; p++ {
			for u := 0; u <= 4; u++ {
				var claims []domain.Claim
				for i := 0; i < s; i++ {
					claims = append(claims, domain.Claim{Text: "c", Status: statuses[0]})
				}
				for i := 0; i < p; i++ {
					claims = append(claims, domain.Claim{Text: "c", Status: statuses[1]})
				}
				for i := 0; i < u; i++ {
					claims = append(claims, domain.Claim{Text: "c", Status: statuses[2]})
				}
				got := scoreConfidence(claims)
				if got < 0 || got > 1 {
					t.Fatalf("confidence out of range for s=%d p=%d u=%d: %f", s, p, u, got)
				}
			}
		}
	}
}

func TestVerifyParsesJudgeClaims(t *testing.T) {
	model := &modelFake{
		jsonFn: func(category ports.ModelCategory, _ string) (string, error) {
			if category != ports.ModelBest {
				return "", errors.New("verification must use the best model")
			}
			return `{"claims": [
				{"text": "Service uses OAuth", "status": "supported", "evidence": "OAuth section"},
				{"text": "Tokens last 30 days", "status": "unsupported", "reasoning": "no mention of expiry"}
			], "suggested_corrections": ["remove the expiry claim"]}`, nil
		},
	}
	verifier := NewVerifier(model, 0, 0.7)

	result := verifier.Verify(context.Background(), "q", "answer text", domain.AssembledContext{Text: "ctx"})
	if result.FromFallback {
		t.Fatalf("expected real verification, got fallback")
	}
	if len(result.Claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(result.Claims))
	}
	if result.Claims[1].Status != domain.ClaimUnsupported {
		t.Fatalf("expected unsupported status, got %s", result.Claims[1].Status)
	}
	// (1 + 0)/2 - 0.1 = 0.4, below threshold.
	if result.IsGrounded {
		t.Fatalf("expected ungrounded result at confidence %f", result.Confidence)
	}
	if len(result.SuggestedCorrections) != 1 {
		t.Fatalf("expected suggested corrections carried through")
	}
}

func TestVerifyFallsBackWhenJudgeDown(t *testing.T) {
	model := &modelFake{
		jsonFn: func(_ ports.ModelCategory, _ string) (string, error) {
			return "", errors.New("judge down")
		},
	}
	verifier := NewVerifier(model, 0, 0.7)

	result := verifier.Verify(context.Background(), "q", "answer", domain.AssembledContext{})
	if !result.FromFallback {
		t.Fatalf("expected fallback verification")
	}
	if result.Confidence != neutralConfidence || !result.IsGrounded {
		t.Fatalf("fallback must pass neutrally, got %+v", result)
	}
}

func TestVerifyNilModelFallsBack(t *testing.T) {
	verifier := NewVerifier(nil, 0, 0.7)
	result := verifier.Verify(context.Background(), "q", "answer", domain.AssembledContext{})
	if !result.FromFallback {
		t.Fatalf("expected fallback with nil judge")
	}
}

func TestNormalizeClaimStatusUnknownIsUnsupported(t *testing.T) {
	if got := normalizeClaimStatus("probably fine"); got != domain.ClaimUnsupported {
		t.Fatalf("unknown status must map conservatively, got %s", got)
	}
	if got := normalizeClaimStatus("Supported"); got != domain.ClaimSupported {
		t.Fatalf("expected case-insensitive match, got %s", got)
	}
	if got := normalizeClaimStatus(" partially_supported "); got != domain.ClaimPartiallySupported {
		t.Fatalf("expected trimmed match, got %s", got)
	}
}

func TestParseClaimsSkipsEmptyText(t *testing.T) {
	claims, _, err := parseClaims(`{"claims": [{"text": "  ", "status": "supported"}, {"text": "real", "status": "supported"}]}`)
	if err != nil {
		t.Fatalf("parseClaims error = %v", err)
	}
	if len(claims) != 1 || claims[0].Text != "real" {
		t.Fatalf("expected empty-text claims dropped, got %+v", claims)
	}
}
