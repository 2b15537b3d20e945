package domain

// GroundedAnswer is the composite ask result: the generated (and possibly
// corrected) answer plus the evidence and plan that produced it.
type GroundedAnswer struct {
	Answer       string             `json:"answer"`
	Confidence   float64            `json:"confidence"`
	IsGrounded   bool               `json:"is_grounded"`
	Sources      []ContextSource    `json:"sources"`
	Plan         QueryPlan          `json:"plan"`
	Verification VerificationResult `json:"verification"`
	Attempts     []CRAGAttempt      `json:"attempts,omitempty"`
	Degraded     bool               `json:"degraded,omitempty"`
}
