package classification

import (
	"context"
	"time"

	"github.com/Tutortoise/image-classification-service/models"
)

// ModelProvider hands out the process-wide model, loading it on first use.
type ModelProvider interface {
	Get(ctx context.Context) (Model, error)
}

// Settings is one deployment profile: labels, input size and K belong together.
type Settings struct {
	Labels []string
	Height int
	Width  int
	TopK   int
}

// Pipeline is decode -> tensor -> model -> top-k for a single image.
type Pipeline struct {
	preprocessor Preprocessor
	provider     ModelProvider
	classifier   *Classifier
	settings     Settings
}

func NewPipeline(preprocessor Preprocessor, provider ModelProvider, settings Settings) *Pipeline {
	return &Pipeline{
		preprocessor: preprocessor,
		provider:     provider,
		classifier:   NewClassifier(settings.Labels),
		settings:     settings,
	}
}

func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Classify returns the ranked predictions for raw image bytes. Every error it
// returns is a *models.Error.
func (p *Pipeline) Classify(ctx context.Context, raw []byte, timings *models.ProcessingTimings) (models.PredictionList, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	tensor, err := p.preprocessor.Preprocess(raw, p.settings.Height, p.settings.Width, timings)
	if err != nil {
		return nil, err
	}

	acquireStart := time.Now()
	model, err := p.provider.Get(ctx)
	timings.ModelAcquire = time.Since(acquireStart)
	if err != nil {
		return nil, err
	}

	inferStart := time.Now()
	scores, err := p.classifier.Predict(ctx, tensor, model)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		return nil, err
	}

	rankStart := time.Now()
	predictions, err := TopK(scores, p.settings.Labels, p.settings.TopK)
	timings.Ranking = time.Since(rankStart)
	return predictions, err
}
