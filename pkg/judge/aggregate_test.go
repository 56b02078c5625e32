package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/models"
)

func eval(score, weight float64) models.EvaluationRecord {
	return models.EvaluationRecord{OverallScore: score, Weight: weight}
}

func TestAggregateScore_WeightedMean(t *testing.T) {
	evals := []models.EvaluationRecord{
		eval(80, 2),
		eval(60, 1),
	}
	// (80*2 + 60*1) / 3
	assert.InDelta(t, 73.333, AggregateScore(evals), 0.001)
}

func TestAggregateScore_ZeroTotalWeight(t *testing.T) {
	evals := []models.EvaluationRecord{
		eval(90, 0),
		eval(10, 0),
	}
	assert.Equal(t, 0.0, AggregateScore(evals))
	assert.Equal(t, 0.0, AggregateScore(nil))
}

func TestAggregateScore_SingleJudge(t *testing.T) {
	assert.Equal(t, 85.0, AggregateScore([]models.EvaluationRecord{eval(85, 1.5)}))
}

func TestRankImages_DescendingOrder(t *testing.T) {
	perImage := map[string][]models.EvaluationRecord{
		"img-a": {eval(70, 1)},
		"img-b": {eval(90, 1)},
		"img-c": {eval(80, 1)},
	}

	ranked := RankImages(perImage, []string{"img-a", "img-b", "img-c"})
	require.Len(t, ranked, 3)
	assert.Equal(t, "img-b", ranked[0].ImageID)
	assert.Equal(t, "img-c", ranked[1].ImageID)
	assert.Equal(t, "img-a", ranked[2].ImageID)
	assert.Equal(t, 90.0, ranked[0].Aggregate)
}

func TestRankImages_TiesGoToLaterImage(t *testing.T) {
	perImage := map[string][]models.EvaluationRecord{
		"first":  {eval(75, 1)},
		"second": {eval(75, 1)},
		"third":  {eval(75, 1)},
	}

	ranked := RankImages(perImage, []string{"first", "second", "third"})
	require.Len(t, ranked, 3)
	assert.Equal(t, "third", ranked[0].ImageID)
	assert.Equal(t, "second", ranked[1].ImageID)
	assert.Equal(t, "first", ranked[2].ImageID)
}

func TestRankImages_SkipsImagesWithoutEvaluations(t *testing.T) {
	perImage := map[string][]models.EvaluationRecord{
		"voted":   {eval(50, 1)},
		"unvoted": {},
	}

	ranked := RankImages(perImage, []string{"voted", "unvoted"})
	require.Len(t, ranked, 1)
	assert.Equal(t, "voted", ranked[0].ImageID)
}

func TestRankImages_AllParseFailuresYieldEmpty(t *testing.T) {
	ranked := RankImages(map[string][]models.EvaluationRecord{}, []string{"a", "b"})
	assert.Empty(t, ranked)
}
