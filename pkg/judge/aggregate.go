package judge

import (
	"github.com/atelierhq/atelier/pkg/models"
)

// AggregateScore computes the weighted mean of a panel's scores for one
// image. A panel whose weights sum to zero yields exactly 0.
func AggregateScore(evaluations []models.EvaluationRecord) float64 {
	var weightedSum, totalWeight float64
	for _, eval := range evaluations {
		weightedSum += eval.OverallScore * eval.Weight
		totalWeight += eval.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// RankedImage pairs an image with its panel verdict.
type RankedImage struct {
	ImageID     string
	Aggregate   float64
	Evaluations []models.EvaluationRecord
}

// RankImages orders images by aggregate score descending. Ties go to the
// image evaluated later, so on a dead heat the most recent candidate
// wins. Images without any usable evaluation are excluded entirely.
func RankImages(perImage map[string][]models.EvaluationRecord, order []string) []RankedImage {
	ranked := make([]RankedImage, 0, len(order))
	for _, imageID := range order {
		evals := perImage[imageID]
		if len(evals) == 0 {
			continue
		}
		ranked = append(ranked, RankedImage{
			ImageID:     imageID,
			Aggregate:   AggregateScore(evals),
			Evaluations: evals,
		})
	}

	// Insertion sort, scanning from the back so that on equal aggregates
	// the later-inserted image ends up first.
	for i := 1; i < len(ranked); i++ {
		current := ranked[i]
		j := i - 1
		for j >= 0 && ranked[j].Aggregate <= current.Aggregate {
			ranked[j+1] = ranked[j]
			j--
		}
		ranked[j+1] = current
	}
	return ranked
}
