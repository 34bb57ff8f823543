package classification

import (
	"fmt"
	"math"
	"sort"

	"github.com/Tutortoise/image-classification-service/models"
)

// TopK returns the k highest scores paired with their labels.
//
// Order is descending by score; equal scores keep ascending label index.
// NaN ranks below every number. k == 0 yields an empty list.
func TopK(scores ScoreVector, labels []string, k int) (models.PredictionList, error) {
	if len(labels) != len(scores) {
		return nil, models.ModelUnavailableError(models.StageRank, models.ErrLabelMismatch,
			fmt.Errorf("%d scores for %d labels", len(scores), len(labels)))
	}
	if k < 0 || k > len(scores) {
		return nil, models.InternalError(models.StageRank, models.ErrInvalidK,
			fmt.Errorf("k=%d with %d scores", k, len(scores)))
	}

	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return ranksAbove(scores[indices[i]], scores[indices[j]])
	})

	predictions := make(models.PredictionList, 0, k)
	for _, idx := range indices[:k] {
		predictions = append(predictions, models.Prediction{
			Class:      labels[idx],
			Confidence: RoundConfidence(scores[idx]),
		})
	}
	return predictions, nil
}

func ranksAbove(a, b float32) bool {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case aNaN:
		return false
	case bNaN:
		return true
	default:
		return a > b
	}
}

// RoundConfidence rounds half away from zero to 4 decimal places.
func RoundConfidence(v float32) float64 {
	return math.Round(float64(v)*ConfidenceScale) / ConfidenceScale
}
