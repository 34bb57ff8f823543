package modelcache

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Tutortoise/image-classification-service/classification"
	"github.com/Tutortoise/image-classification-service/metrics"
	"github.com/Tutortoise/image-classification-service/modelstore"
	"github.com/Tutortoise/image-classification-service/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const loadKey = "model"

var ErrCacheClosed = errors.New("model cache is closed")

// Parser turns a model file into a loaded model. It is the ML runtime's job.
type Parser interface {
	Parse(path string) (classification.Model, error)
}

type Options struct {
	// ScratchDir receives staged copies of remote artifacts.
	ScratchDir string
	// FetchTimeout bounds one fetch+parse. Zero means no bound.
	FetchTimeout time.Duration
}

// Cache holds the process-wide model. It loads at most once at a time; a
// failed load leaves the cache empty so the next Get retries.
type Cache struct {
	source modelstore.Source
	parser Parser
	opts   Options

	group  singleflight.Group
	mu     sync.RWMutex
	model  classification.Model
	closed bool
}

func New(source modelstore.Source, parser Parser, opts Options) *Cache {
	return &Cache{source: source, parser: parser, opts: opts}
}

// Get returns the cached model, loading it on first use. Concurrent callers
// during a load wait for that load. A caller whose ctx ends stops waiting,
// the load itself carries on.
func (c *Cache) Get(ctx context.Context) (classification.Model, error) {
	if model, ok := c.Peek(); ok {
		return model, nil
	}

	ch := c.group.DoChan(loadKey, func() (interface{}, error) {
		if model, ok := c.Peek(); ok {
			return model, nil
		}
		return c.load()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(classification.Model), nil
	case <-ctx.Done():
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrModelLoad, ctx.Err())
	}
}

// Peek returns the model if one is loaded, without loading.
func (c *Cache) Peek() (classification.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model, c.model != nil
}

// Close releases the cached model, if any. A load still in flight releases
// its model instead of storing it, and later Gets fail.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	model := c.model
	c.model = nil
	return closeModel(model)
}

func closeModel(model classification.Model) error {
	if closer, ok := model.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Cache) load() (classification.Model, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrModelLoad, ErrCacheClosed)
	}

	ctx := context.Background()
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	log.Info().Str("source", c.source.String()).Msg("loading model")

	var model classification.Model
	err := modelstore.Materialize(ctx, c.source, c.opts.ScratchDir, func(path string) error {
		m, err := c.parser.Parse(path)
		if err != nil {
			return err
		}
		model = m
		return nil
	})
	elapsed := time.Since(start)
	metrics.ObserveModelLoad(elapsed, err)
	if err != nil {
		log.Error().Err(err).Str("source", c.source.String()).Dur("elapsed", elapsed).Msg("model load failed")
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrModelLoad, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		closeModel(model)
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrModelLoad, ErrCacheClosed)
	}
	c.model = model
	c.mu.Unlock()

	log.Info().Str("source", c.source.String()).Dur("elapsed", elapsed).Msg("model loaded")
	return model, nil
}
