package domain

type ClaimStatus string

const (
	ClaimSupported          ClaimStatus = "supported"
	ClaimUnsupported        ClaimStatus = "unsupported"
	ClaimPartiallySupported ClaimStatus = "partially_supported"
)

type Claim struct {
	Text      string      `json:"text"`
	Status    ClaimStatus `json:"status"`
	Evidence  string      `json:"evidence,omitempty"`
	Reasoning string      `json:"reasoning,omitempty"`
}

type VerificationResult struct {
	Confidence           float64  `json:"confidence"`
	IsGrounded           bool     `json:"is_grounded"`
	Claims               []Claim  `json:"claims"`
	SuggestedCorrections []string `json:"suggested_corrections,omitempty"`
	FromFallback         bool     `json:"from_fallback,omitempty"`
}

func (v VerificationResult) UnsupportedClaims() []Claim {
	var claims []Claim
	for _, claim := range v.Claims {
		if claim.Status == ClaimUnsupported {
			claims = append(claims, claim)
		}
	}
	return claims
}

// CRAGAttempt records one corrective retrieval/regeneration cycle. The list
// of attempts per request is append-only and bounded by configuration.
type CRAGAttempt struct {
	AttemptNumber     int                `json:"attempt_number"`
	Queries           []string           `json:"queries"`
	AdditionalContext string             `json:"additional_context"`
	RegeneratedAnswer string             `json:"regenerated_answer"`
	Verification      VerificationResult `json:"verification"`
}

// VerificationEvent is the audit record published after verify-and-correct
// completes, regardless of outcome.
type VerificationEvent struct {
	RequestID         string  `json:"request_id"`
	Workspace         string  `json:"workspace,omitempty"`
	Query             string  `json:"query"`
	Confidence        float64 `json:"confidence"`
	IsGrounded        bool    `json:"is_grounded"`
	Attempts          int     `json:"attempts"`
	UnsupportedClaims int     `json:"unsupported_claims"`
}

// VerifiedAnswer is the final product of verify-and-correct: the answer that
// survived the loop together with its true confidence.
type VerifiedAnswer struct {
	FinalAnswer  string             `json:"final_answer"`
	Verification VerificationResult `json:"verification"`
	Attempts     []CRAGAttempt      `json:"attempts,omitempty"`
}
