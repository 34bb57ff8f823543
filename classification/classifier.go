package classification

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/Tutortoise/image-classification-service/models"
)

// Model is a loaded predictor with a fixed input/output contract.
type Model interface {
	// InputShape is the exact NHWC shape Predict accepts.
	InputShape() []int64
	// OutputWidth is the number of scores Predict returns.
	OutputWidth() int
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

// Classifier runs tensors through a model and validates the scores.
type Classifier struct {
	labels []string
}

func NewClassifier(labels []string) *Classifier {
	return &Classifier{labels: labels}
}

func (c *Classifier) Predict(ctx context.Context, tensor *Tensor, model Model) (ScoreVector, error) {
	if !slices.Equal(tensor.Shape, model.InputShape()) {
		return nil, models.ModelUnavailableError(models.StageClassify, models.ErrShapeMismatch,
			fmt.Errorf("tensor %v, model expects %v", tensor.Shape, model.InputShape()))
	}
	if model.OutputWidth() != len(c.labels) {
		return nil, models.ModelUnavailableError(models.StageClassify, models.ErrLabelMismatch,
			fmt.Errorf("model outputs %d scores for %d labels", model.OutputWidth(), len(c.labels)))
	}

	out, err := model.Predict(ctx, tensor.Data)
	if err != nil {
		return nil, models.InternalError(models.StageClassify, models.ErrInference, err)
	}
	if len(out) != len(c.labels) {
		return nil, models.ModelUnavailableError(models.StageClassify, models.ErrLabelMismatch,
			fmt.Errorf("model returned %d scores for %d labels", len(out), len(c.labels)))
	}
	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, models.InternalError(models.StageClassify, models.ErrInference,
				fmt.Errorf("non-finite score for %s", c.labels[i]))
		}
	}
	return ScoreVector(out), nil
}
