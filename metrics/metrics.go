package metrics

import (
	"net/http"
	"time"

	"github.com/Tutortoise/image-classification-service/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "image_classifier"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Classification requests by outcome.",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"stage"})

	modelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_loads_total",
		Help:      "Model load attempts by result.",
	}, []string{"result"})

	modelLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_load_duration_seconds",
		Help:      "Duration of model fetch and parse.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records the outcome and stage timings of one request.
func ObserveRequest(t *models.ProcessingTimings, err error) {
	outcome := "success"
	if err != nil {
		outcome = models.CategoryOf(err).String()
	}
	requestsTotal.WithLabelValues(outcome).Inc()

	observeStage("decode", t.ImageDecode)
	observeStage("resize", t.Resize)
	observeStage("preprocess", t.Preprocess)
	observeStage("model_acquire", t.ModelAcquire)
	observeStage("inference", t.Inference)
	observeStage("ranking", t.Ranking)
	observeStage("total", t.Total)
}

func ObserveModelLoad(elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	modelLoads.WithLabelValues(result).Inc()
	modelLoadDuration.Observe(elapsed.Seconds())
}

func observeStage(stage string, d time.Duration) {
	if d > 0 {
		stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}
