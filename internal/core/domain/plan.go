package domain

type QueryType string

const (
	QueryDocumentLookup QueryType = "document_lookup"
	QueryFactualQA      QueryType = "factual_qa"
	QueryProcedural     QueryType = "procedural"
	QueryMultiStep      QueryType = "multi_step"
)

type RetrievalStrategy string

const (
	StrategyFullDocument   RetrievalStrategy = "full_document"
	StrategySemanticChunks RetrievalStrategy = "semantic_chunks"
	StrategyHybrid         RetrievalStrategy = "hybrid"
)

// QueryPlan is produced once per request by the planner and read-only after.
type QueryPlan struct {
	QueryType     QueryType         `json:"query_type"`
	Strategy      RetrievalStrategy `json:"retrieval_strategy"`
	FilenameHints []string          `json:"filename_hints,omitempty"`
	AnswerStyle   string            `json:"answer_style,omitempty"`
	Complexity    string            `json:"complexity,omitempty"`
	FromFallback  bool              `json:"from_fallback,omitempty"`
}

// PreprocessResult is the deterministic heuristic view of a query. It is both
// an input to the planner and the planner's fallback.
type PreprocessResult struct {
	NormalizedQuery   string
	IsDocumentRequest bool
	DocumentHint      string
	SearchTerms       []string
}

// ExpansionResult fans a query out into paraphrases plus an optional
// hypothetical answer passage used as an extra retrieval probe.
type ExpansionResult struct {
	ExpandedQueries    []string `json:"expanded_queries"`
	HypotheticalAnswer string   `json:"hypothetical_answer,omitempty"`
	KeyEntities        []string `json:"key_entities,omitempty"`
	FilenamePatterns   []string `json:"filename_patterns,omitempty"`
	FromFallback       bool     `json:"from_fallback,omitempty"`
}
