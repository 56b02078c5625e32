package events

import (
	"github.com/atelierhq/atelier/pkg/models"
)

// InitialStatePayload is the data of an initial_state event: a full
// snapshot of the request and every image persisted so far. Sent once,
// synchronously, when a client subscribes.
type InitialStatePayload struct {
	Request *models.GenerationRequest `json:"request"`
	Images  []*models.GeneratedImage  `json:"images"`
}

// StatusChangePayload is the data of a status_change event, published on
// every lifecycle transition (OPTIMIZING, GENERATING, EVALUATING, ...).
type StatusChangePayload struct {
	Status    models.RequestStatus `json:"status"`
	Iteration int                  `json:"iteration"` // 1-based, 0 before the first iteration starts
}

// IterationCompletePayload is the data of an iteration_complete event,
// published after the iteration has been committed to the database.
type IterationCompletePayload struct {
	Iteration *models.IterationSnapshot `json:"iteration"`
	Images    []*models.GeneratedImage  `json:"images"` // this iteration's images
	BestScore float64                   `json:"bestScore"`
	Costs     models.Costs              `json:"costs"` // running totals for the request
}

// CompletedPayload is the data of a completed event. Cancelled runs also
// end with a completed event; Reason distinguishes the outcomes.
type CompletedPayload struct {
	Request      *models.GenerationRequest `json:"request"`
	Reason       models.CompletionReason   `json:"reason"`
	FinalImageID string                    `json:"finalImageId,omitempty"`
	BestScore    float64                   `json:"bestScore"`
	Costs        models.Costs              `json:"costs"`
	RetryCount   int                       `json:"retryCount"`
}

// FailedPayload is the data of a failed event.
type FailedPayload struct {
	Error      string       `json:"error"`
	Costs      models.Costs `json:"costs"`
	RetryCount int          `json:"retryCount"`
}
