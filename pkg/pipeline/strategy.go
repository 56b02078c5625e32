package pipeline

import (
	"log/slog"

	"github.com/atelierhq/atelier/pkg/models"
)

const (
	// editScoreFloor is the minimum prior aggregate for the edit path in
	// MIXED mode; below it a fresh prompt is more promising than touch-ups.
	editScoreFloor = 50.0

	// consecutiveEditLimit forces a regeneration in MIXED mode after this
	// many edits in a row, breaking out of local minima.
	consecutiveEditLimit = 3

	// Stalled-score heuristic for MIXED mode: when the last three aggregate
	// scores sit within 3 points of each other, regeneration is unlikely to
	// move the needle and editing is preferred from this floor upward.
	// Distinct from the termination plateau, which uses the request's own
	// plateau settings.
	strategyPlateauWindow = 3
	strategyPlateauDelta  = 3.0
	plateauEditScoreFloor = 65.0

	// editModeWarnAfter triggers a log warning in pure EDIT mode; the mode
	// is still honored.
	editModeWarnAfter = 5
)

// chooseMode picks the generation path for the coming iteration from the
// request's mode policy and the committed history.
func chooseMode(req *models.GenerationRequest, iteration int, logger *slog.Logger) models.IterationMode {
	prior := lastSnapshot(req)

	switch req.GenerationMode {
	case models.ModeRegeneration:
		return models.IterationRegeneration
	case models.ModeEdit:
		// The first iteration has no source image to edit.
		if iteration < 2 || prior == nil {
			return models.IterationRegeneration
		}
		if prior.ConsecutiveEditCount >= editModeWarnAfter {
			logger.Warn("Long consecutive edit streak in EDIT mode",
				"consecutive_edits", prior.ConsecutiveEditCount)
		}
		return models.IterationEdit
	}

	// MIXED policy.
	if iteration == 1 || prior == nil {
		return models.IterationRegeneration
	}
	score := prior.AggregateScore
	severity, hasIssue := worstSeverity(prior.Evaluations)

	switch {
	case score < editScoreFloor,
		prior.ConsecutiveEditCount >= consecutiveEditLimit,
		hasIssue && (severity == models.SeverityCritical || severity == models.SeverityMajor):
		return models.IterationRegeneration
	case hasIssue:
		// Severity is moderate or minor and the score cleared the floor.
		return models.IterationEdit
	case scoresStalled(aggregateScores(req)) && score >= plateauEditScoreFloor:
		return models.IterationEdit
	}
	return models.IterationRegeneration
}

// worstSeverity returns the most severe top issue across the winner's
// evaluations. Issues without a problem statement are skipped; invalid
// severities count as moderate.
func worstSeverity(evaluations []models.EvaluationRecord) (models.Severity, bool) {
	var worst models.Severity
	found := false
	for _, ev := range evaluations {
		if ev.TopIssue == nil || ev.TopIssue.Problem == "" {
			continue
		}
		severity := ev.TopIssue.Severity
		if !severity.Valid() {
			severity = models.SeverityModerate
		}
		if !found || severity.Rank() < worst.Rank() {
			worst = severity
			found = true
		}
	}
	return worst, found
}

// scoresStalled reports whether the last three aggregate scores sit within
// strategyPlateauDelta of each other.
func scoresStalled(scores []float64) bool {
	if len(scores) < strategyPlateauWindow {
		return false
	}
	window := scores[len(scores)-strategyPlateauWindow:]
	lo, hi := window[0], window[0]
	for _, s := range window[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return hi-lo < strategyPlateauDelta
}

// lastSnapshot returns the most recently committed iteration, nil when
// none exist.
func lastSnapshot(req *models.GenerationRequest) *models.IterationSnapshot {
	if n := len(req.Iterations); n > 0 {
		return &req.Iterations[n-1]
	}
	return nil
}

// aggregateScores lists the committed aggregate scores in iteration order.
func aggregateScores(req *models.GenerationRequest) []float64 {
	scores := make([]float64, len(req.Iterations))
	for i := range req.Iterations {
		scores[i] = req.Iterations[i].AggregateScore
	}
	return scores
}
