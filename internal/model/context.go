package model

import "time"

// RetrievalHit is one scored candidate from hybrid retrieval. Ephemeral,
// never persisted. RerankScore is nil until the rerank stage has run.
type RetrievalHit struct {
	RecordID      string   `json:"record_id"`
	Record        *Record  `json:"record,omitempty"`
	LexicalScore  float64  `json:"lexical_score"`
	SemanticScore float64  `json:"semantic_score"`
	FusedScore    float64  `json:"fused_score"`
	RerankScore   *float64 `json:"rerank_score,omitempty"`
}

// ReasoningState is the reasoner's lifecycle state.
type ReasoningState string

const (
	ReasoningInit      ReasoningState = "init"
	ReasoningStepping  ReasoningState = "stepping"
	ReasoningConcluded ReasoningState = "concluded"
	ReasoningFailed    ReasoningState = "failed"
)

// ReasoningStep is one link in a reasoning chain. Every cited record id must
// come from the evidence set the reasoner was given.
type ReasoningStep struct {
	Index               int      `json:"index"`
	Claim               string   `json:"claim"`
	SupportingRecordIDs []string `json:"supporting_record_ids,omitempty"`
	Confidence          float64  `json:"confidence"`
}

// ReasoningTrace is an ordered, non-empty chain of steps with one designated
// conclusion step.
type ReasoningTrace struct {
	Question        string          `json:"question"`
	Steps           []ReasoningStep `json:"steps"`
	ConclusionIndex int             `json:"conclusion_index"`
	State           ReasoningState  `json:"state"`
}

// Conclusion returns the designated conclusion step.
func (t *ReasoningTrace) Conclusion() ReasoningStep {
	return t.Steps[t.ConclusionIndex]
}

// LateralConnection is an undirected association between two records along
// one dimension. RecordA sorts before RecordB so a pair is reported once.
type LateralConnection struct {
	RecordA   string    `json:"record_a"`
	RecordB   string    `json:"record_b"`
	Dimension Dimension `json:"dimension"`
	Strength  float64   `json:"strength"`
	Rationale string    `json:"rationale"`
}

// SectionStatus describes whether one section of a context was fully
// computed or downgraded (timeout, backend failure).
type SectionStatus struct {
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// IntelligentContext is the orchestrator's sole output contract. Immutable
// once assembled; a degraded context is still a valid result.
type IntelligentContext struct {
	Query       string              `json:"query"`
	RecordID    string              `json:"record_id,omitempty"`
	Hits        []RetrievalHit      `json:"hits"`
	Reasoning   *ReasoningTrace     `json:"reasoning,omitempty"`
	Connections []LateralConnection `json:"connections,omitempty"`

	RetrievalStatus SectionStatus `json:"retrieval_status"`
	ReasoningStatus SectionStatus `json:"reasoning_status"`
	LateralStatus   SectionStatus `json:"lateral_status"`

	GeneratedAt time.Time `json:"generated_at"`
}
