package models

import "time"

// RequestStatus tracks a generation request through its lifecycle.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusOptimizing RequestStatus = "OPTIMIZING"
	StatusGenerating RequestStatus = "GENERATING"
	StatusEvaluating RequestStatus = "EVALUATING"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusFailed     RequestStatus = "FAILED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// IsTerminal reports whether the status is a final state.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CompletionReason explains why a request reached its terminal status.
// Empty means the request has not terminated yet.
type CompletionReason string

const (
	ReasonSuccess            CompletionReason = "SUCCESS"
	ReasonMaxRetriesReached  CompletionReason = "MAX_RETRIES_REACHED"
	ReasonDiminishingReturns CompletionReason = "DIMINISHING_RETURNS"
	ReasonCancelled          CompletionReason = "CANCELLED"
	ReasonError              CompletionReason = "ERROR"
)

// GenerationMode selects the per-iteration strategy policy.
type GenerationMode string

const (
	ModeRegeneration GenerationMode = "REGENERATION"
	ModeEdit         GenerationMode = "EDIT"
	ModeMixed        GenerationMode = "MIXED"
)

// Bounds enforced at intake.
const (
	MaxImagesPerGeneration = 8
	MaxIterationsLimit     = 50
	MaxReferenceImages     = 5

	DefaultPlateauWindowSize = 3
	DefaultPlateauThreshold  = 0.02
)

// ImageParams are the generation knobs carried on a request.
type ImageParams struct {
	ImagesPerGeneration int     `json:"imagesPerGeneration"`
	AspectRatio         string  `json:"aspectRatio,omitempty"`
	Quality             string  `json:"quality,omitempty"`
	PlateauWindowSize   int     `json:"plateauWindowSize"`
	PlateauThreshold    float64 `json:"plateauThreshold"`
}

// Costs is a monotone accumulator of spend across a request's lifetime.
type Costs struct {
	LLMTokens          int64   `json:"llmTokens"`
	ImageGenerations   int     `json:"imageGenerations"`
	EmbeddingTokens    int64   `json:"embeddingTokens"`
	TotalEstimatedCost float64 `json:"totalEstimatedCost"`
}

// Add merges a delta into the accumulator. Negative deltas are ignored so
// the accumulator never decreases.
func (c *Costs) Add(delta Costs) {
	if delta.LLMTokens > 0 {
		c.LLMTokens += delta.LLMTokens
	}
	if delta.ImageGenerations > 0 {
		c.ImageGenerations += delta.ImageGenerations
	}
	if delta.EmbeddingTokens > 0 {
		c.EmbeddingTokens += delta.EmbeddingTokens
	}
	if delta.TotalEstimatedCost > 0 {
		c.TotalEstimatedCost += delta.TotalEstimatedCost
	}
}

// GenerationRequest is the root aggregate: one brief driven through the
// optimize/generate/evaluate loop until a terminal status.
type GenerationRequest struct {
	ID                 string             `json:"id"`
	OrganizationID     string             `json:"organizationId"`
	CreatedBy          string             `json:"createdBy"`
	Brief              string             `json:"brief"`
	InitialPrompt      string             `json:"initialPrompt,omitempty"`
	ReferenceImageURLs []string           `json:"referenceImageUrls,omitempty"`
	NegativePrompts    string             `json:"negativePrompts,omitempty"`
	JudgeAgentIDs      []string           `json:"judgeAgentIds"`
	ImageParams        ImageParams        `json:"imageParams"`
	Threshold          float64            `json:"threshold"`
	MaxIterations      int                `json:"maxIterations"`
	GenerationMode     GenerationMode     `json:"generationMode"`
	Status             RequestStatus      `json:"status"`
	CompletionReason   CompletionReason   `json:"completionReason,omitempty"`
	CurrentIteration   int                `json:"currentIteration"`
	Iterations         []IterationSnapshot `json:"iterations"`
	Costs              Costs              `json:"costs"`
	FinalImageID       string             `json:"finalImageId,omitempty"`
	ErrorMessage       string             `json:"errorMessage,omitempty"`

	// Queue lease state. The request row doubles as the queue entry.
	WorkerID         string     `json:"workerId,omitempty"`
	DispatchAttempts int        `json:"dispatchAttempts"`
	EnqueuedAt       time.Time  `json:"enqueuedAt"`
	ClaimedAt        *time.Time `json:"claimedAt,omitempty"`
	LastHeartbeatAt  *time.Time `json:"lastHeartbeatAt,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// BestIteration returns the snapshot with the highest aggregate score,
// preferring later iterations on ties. Nil when no iterations exist.
func (r *GenerationRequest) BestIteration() *IterationSnapshot {
	var best *IterationSnapshot
	for i := range r.Iterations {
		it := &r.Iterations[i]
		if best == nil || it.AggregateScore >= best.AggregateScore {
			best = it
		}
	}
	return best
}

// BestScore is the highest aggregate score observed so far, 0 before the
// first iteration commits.
func (r *GenerationRequest) BestScore() float64 {
	if best := r.BestIteration(); best != nil {
		return best.AggregateScore
	}
	return 0
}

// CreateRequestInput carries the intake fields for a new generation request.
type CreateRequestInput struct {
	OrganizationID     string      `json:"organizationId"`
	CreatedBy          string      `json:"createdBy"`
	Brief              string      `json:"brief"`
	InitialPrompt      string      `json:"initialPrompt,omitempty"`
	ReferenceImageURLs []string    `json:"referenceImageUrls,omitempty"`
	JudgeAgentIDs      []string    `json:"judgeAgentIds"`
	ImageParams        ImageParams `json:"imageParams"`
	Threshold          float64     `json:"threshold"`
	MaxIterations      int         `json:"maxIterations"`
	GenerationMode     GenerationMode `json:"generationMode,omitempty"`
}

// ContinueRequestInput restarts a terminal request with an extended budget.
type ContinueRequestInput struct {
	AdditionalIterations int            `json:"additionalIterations"`
	JudgeAgentIDs        []string       `json:"judgeAgentIds,omitempty"`
	InitialPrompt        string         `json:"initialPrompt,omitempty"`
	GenerationMode       GenerationMode `json:"generationMode,omitempty"`
}

// RequestFilters narrows request listings.
type RequestFilters struct {
	OrganizationID string
	Status         RequestStatus
	Limit          int
	Offset         int
	IncludeDeleted bool
}
