package pipeline

import (
	"github.com/atelierhq/atelier/pkg/models"
)

// outcome is the terminal state a run converged on. message carries the
// human-readable explanation persisted as errorMessage (timeouts, errors).
type outcome struct {
	status       models.RequestStatus
	reason       models.CompletionReason
	finalImageID string
	message      string
}

// checkTermination runs the post-commit terminal checks in their fixed
// order: score threshold, plateau, iteration budget. Cancellation and the
// wall clock are observed separately at run boundaries. Returns nil when
// the loop should continue.
func checkTermination(req *models.GenerationRequest, snapshot *models.IterationSnapshot) *outcome {
	if snapshot.AggregateScore >= req.Threshold {
		return &outcome{
			status:       models.StatusCompleted,
			reason:       models.ReasonSuccess,
			finalImageID: snapshot.SelectedImageID,
		}
	}
	if plateaued(req) {
		return &outcome{
			status:       models.StatusCompleted,
			reason:       models.ReasonDiminishingReturns,
			finalImageID: req.BestIteration().SelectedImageID,
		}
	}
	if snapshot.IterationNumber >= req.MaxIterations {
		return &outcome{
			status:       models.StatusCompleted,
			reason:       models.ReasonMaxRetriesReached,
			finalImageID: req.BestIteration().SelectedImageID,
		}
	}
	return nil
}

// plateaued reports whether the last plateauWindowSize aggregate scores,
// including the current iteration, sit within plateauThreshold*100 points
// of each other. The threshold is stored as a fraction (default 0.02) but
// scores run 0..100, so a 0.02 threshold means a 2-point band.
func plateaued(req *models.GenerationRequest) bool {
	window := req.ImageParams.PlateauWindowSize
	if window <= 0 {
		window = models.DefaultPlateauWindowSize
	}
	threshold := req.ImageParams.PlateauThreshold
	if threshold <= 0 {
		threshold = models.DefaultPlateauThreshold
	}

	scores := aggregateScores(req)
	if len(scores) < window {
		return false
	}
	recent := scores[len(scores)-window:]
	lo, hi := recent[0], recent[0]
	for _, s := range recent[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return hi-lo < threshold*100
}
