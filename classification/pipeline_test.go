package classification

import (
	"context"
	"encoding/json"
	"image/color"
	"testing"

	"github.com/Tutortoise/image-classification-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cifarSettings(height, width, k int) Settings {
	return Settings{Labels: CIFAR10Labels, Height: height, Width: width, TopK: k}
}

func TestPipeline_BlackImageRoundTrip(t *testing.T) {
	model := newStubModel(32, 32, []float32{0.9, 0.05, 0.05, 0, 0, 0, 0, 0, 0, 0})
	p := NewPipeline(NewImagePreprocessor(), &stubProvider{model: model}, cifarSettings(32, 32, 3))
	raw := encodePNG(t, solidRGBA(32, 32, color.RGBA{A: 255}))

	got, err := p.Classify(context.Background(), raw, nil)
	require.NoError(t, err)

	body, err := json.Marshal(models.PredictionResponse{Predictions: got})
	require.NoError(t, err)
	assert.JSONEq(t, `{"predictions":[
		{"class":"airplane","confidence":0.9},
		{"class":"automobile","confidence":0.05},
		{"class":"bird","confidence":0.05}
	]}`, string(body))
}

func TestPipeline_TopFive(t *testing.T) {
	model := newStubModel(224, 224, []float32{0.01, 0.02, 0.03, 0.04, 0.3, 0.2, 0.1, 0.15, 0.1, 0.05})
	p := NewPipeline(NewImagePreprocessor(), &stubProvider{model: model}, cifarSettings(224, 224, 5))
	raw := encodePNG(t, solidRGBA(50, 40, color.RGBA{R: 10, G: 20, B: 30, A: 255}))

	got, err := p.Classify(context.Background(), raw, nil)
	require.NoError(t, err)

	assert.Equal(t, models.PredictionList{
		{Class: "deer", Confidence: 0.3},
		{Class: "dog", Confidence: 0.2},
		{Class: "horse", Confidence: 0.15},
		{Class: "frog", Confidence: 0.1},
		{Class: "ship", Confidence: 0.1},
	}, got)
}

func TestPipeline_DecodeFailureSkipsModel(t *testing.T) {
	provider := &stubProvider{model: newStubModel(32, 32, make([]float32, 10))}
	p := NewPipeline(NewImagePreprocessor(), provider, cifarSettings(32, 32, 3))

	_, err := p.Classify(context.Background(), []byte{0x00, 0x01}, nil)

	assert.ErrorIs(t, err, models.ErrDecode)
	assert.Zero(t, provider.calls)
}

func TestPipeline_ModelUnavailable(t *testing.T) {
	loadErr := models.ModelUnavailableError(models.StageModelLoad, models.ErrModelLoad, nil)
	p := NewPipeline(NewImagePreprocessor(), &stubProvider{err: loadErr}, cifarSettings(32, 32, 3))

	_, err := p.Classify(context.Background(), encodePNG(t, solidRGBA(8, 8, color.RGBA{A: 255})), nil)

	assert.ErrorIs(t, err, models.ErrModelLoad)
	assert.Equal(t, models.CategoryModelUnavailable, models.CategoryOf(err))
}

func TestPipeline_RecordsTimings(t *testing.T) {
	model := newStubModel(32, 32, make([]float32, 10))
	p := NewPipeline(NewImagePreprocessor(), &stubProvider{model: model}, cifarSettings(32, 32, 3))
	timings := &models.ProcessingTimings{RequestID: "req-1"}

	_, err := p.Classify(context.Background(), encodePNG(t, solidRGBA(8, 8, color.RGBA{A: 255})), timings)
	require.NoError(t, err)

	assert.Equal(t, "req-1", timings.RequestID)
	assert.Equal(t, 1, model.calls)
}
