package models

import "time"

// ModelTier selects the model family a judge evaluates with.
type ModelTier string

const (
	TierPro   ModelTier = "PRO"
	TierFlash ModelTier = "FLASH"
)

// RAG retrieval defaults applied when an agent leaves them unset.
const (
	DefaultRAGTopK                = 5
	DefaultRAGSimilarityThreshold = 0.7
	MaxRAGTopK                    = 20
)

// RAGConfig bounds per-judge document retrieval.
type RAGConfig struct {
	TopK                int     `json:"topK"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
}

// DefaultRAGConfig returns the retrieval settings used when an agent has
// no explicit configuration.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		TopK:                DefaultRAGTopK,
		SimilarityThreshold: DefaultRAGSimilarityThreshold,
	}
}

// Agent is the judge view of an agent: a scoring rubric with a weight and
// an optional document collection consulted through RAG.
type Agent struct {
	ID                   string     `json:"id"`
	OrganizationID       string     `json:"organizationId"`
	Name                 string     `json:"name"`
	SystemPrompt         string     `json:"systemPrompt"`
	JudgePrompt          string     `json:"judgePrompt,omitempty"`
	ScoringWeight        float64    `json:"scoringWeight"`
	CanJudge             bool       `json:"canJudge"`
	EvaluationCategories []string   `json:"evaluationCategories,omitempty"`
	RAGConfig            RAGConfig  `json:"ragConfig"`
	ModelTier            ModelTier  `json:"modelTier,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	DeletedAt            *time.Time `json:"deletedAt,omitempty"`
}

// CreateAgentInput carries the fields for registering a new agent.
type CreateAgentInput struct {
	OrganizationID       string    `json:"organizationId"`
	Name                 string    `json:"name"`
	SystemPrompt         string    `json:"systemPrompt"`
	JudgePrompt          string    `json:"judgePrompt,omitempty"`
	ScoringWeight        *float64  `json:"scoringWeight,omitempty"`
	CanJudge             *bool     `json:"canJudge,omitempty"`
	EvaluationCategories []string  `json:"evaluationCategories,omitempty"`
	RAGConfig            *RAGConfig `json:"ragConfig,omitempty"`
	ModelTier            ModelTier `json:"modelTier,omitempty"`
}

// UpdateAgentInput patches an existing agent. Nil fields stay unchanged.
type UpdateAgentInput struct {
	Name                 *string    `json:"name,omitempty"`
	SystemPrompt         *string    `json:"systemPrompt,omitempty"`
	JudgePrompt          *string    `json:"judgePrompt,omitempty"`
	ScoringWeight        *float64   `json:"scoringWeight,omitempty"`
	CanJudge             *bool      `json:"canJudge,omitempty"`
	EvaluationCategories []string   `json:"evaluationCategories,omitempty"`
	RAGConfig            *RAGConfig `json:"ragConfig,omitempty"`
	ModelTier            *ModelTier `json:"modelTier,omitempty"`
}
