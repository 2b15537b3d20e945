package domain

// Chunk is the atomic unit of retrieval, produced by the external ingestion
// pipeline and never mutated here.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Workspace  string            `json:"workspace"`
	Filename   string            `json:"filename"`
	Title      string            `json:"title,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
	CharOffset int               `json:"char_offset"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RankedCandidate accumulates scores as a chunk moves through the retrieval
// stages. RRFScore is computed from ranks only, never raw scores.
type RankedCandidate struct {
	Chunk         Chunk   `json:"chunk"`
	VectorRank    int     `json:"vector_rank"`
	KeywordRank   int     `json:"keyword_rank"`
	RRFScore      float64 `json:"rrf_score"`
	JudgeScore    float64 `json:"judge_score"`
	JudgeScored   bool    `json:"judge_scored"`
	CombinedScore float64 `json:"combined_score"`
}

// UnrankedPosition marks a candidate absent from one of the fused lists.
const UnrankedPosition = -1

type ContextMode string

const (
	ModeFullDocument ContextMode = "full_document"
	ModeSynthesized  ContextMode = "synthesized"
)

// ContextSource attributes a piece of the assembled context to its document.
type ContextSource struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Title      string `json:"title,omitempty"`
	ChunkCount int    `json:"chunk_count"`
}

// AssembledContext is the bounded evidence block handed to the generator and
// retained for verification.
type AssembledContext struct {
	Text       string          `json:"text"`
	TokenCount int             `json:"token_count"`
	Mode       ContextMode     `json:"mode"`
	Sources    []ContextSource `json:"sources"`
	Degraded   bool            `json:"degraded,omitempty"`
	Reason     string          `json:"degraded_reason,omitempty"`
}
