package modelcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tutortoise/image-classification-service/classification"
	"github.com/Tutortoise/image-classification-service/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	fetches atomic.Int32
	gate    chan struct{}
	mu      sync.Mutex
	errs    []error
}

func (s *countingSource) FetchBytes(context.Context) ([]byte, error) {
	s.fetches.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return []byte("weights"), nil
}

func (s *countingSource) String() string { return "stub" }

type fakeModel struct {
	closed atomic.Bool
}

func (m *fakeModel) InputShape() []int64 { return []int64{1, 32, 32, 3} }

func (m *fakeModel) OutputWidth() int { return 10 }

func (m *fakeModel) Predict(context.Context, []float32) ([]float32, error) {
	return make([]float32, 10), nil
}

func (m *fakeModel) Close() error {
	m.closed.Store(true)
	return nil
}

type countingParser struct {
	parses atomic.Int32
	err    error
	last   atomic.Pointer[fakeModel]
}

func (p *countingParser) Parse(string) (classification.Model, error) {
	p.parses.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	model := &fakeModel{}
	p.last.Store(model)
	return model, nil
}

func TestCache_ConcurrentFirstCallsLoadOnce(t *testing.T) {
	source := &countingSource{gate: make(chan struct{})}
	parser := &countingParser{}
	cache := New(source, parser, Options{ScratchDir: t.TempDir()})

	const callers = 32
	results := make([]classification.Model, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			model, err := cache.Get(context.Background())
			assert.NoError(t, err)
			results[i] = model
		}(i)
	}

	require.Eventually(t, func() bool { return source.fetches.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	assert.Equal(t, int32(1), source.fetches.Load())
	assert.Equal(t, int32(1), parser.parses.Load())
	for _, model := range results {
		assert.Same(t, results[0], model)
	}
}

func TestCache_SubsequentCallsUseMemoizedModel(t *testing.T) {
	source := &countingSource{}
	parser := &countingParser{}
	cache := New(source, parser, Options{ScratchDir: t.TempDir()})

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), source.fetches.Load())
}

func TestCache_FailedLoadLeavesCacheEmpty(t *testing.T) {
	notFound := models.ModelUnavailableError(models.StageModelLoad, models.ErrNotFound, errors.New("no such key"))
	source := &countingSource{errs: []error{notFound}}
	parser := &countingParser{}
	cache := New(source, parser, Options{ScratchDir: t.TempDir()})

	_, err := cache.Get(context.Background())

	assert.ErrorIs(t, err, models.ErrModelLoad)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.CategoryModelUnavailable, models.CategoryOf(err))
	_, loaded := cache.Peek()
	assert.False(t, loaded)

	model, err := cache.Get(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, model)
	assert.Equal(t, int32(2), source.fetches.Load())
	_, loaded = cache.Peek()
	assert.True(t, loaded)
}

func TestCache_ParseFailureIsModelUnavailable(t *testing.T) {
	corrupt := models.ModelUnavailableError(models.StageModelLoad, models.ErrCorruptModel, errors.New("bad proto"))
	cache := New(&countingSource{}, &countingParser{err: corrupt}, Options{ScratchDir: t.TempDir()})

	_, err := cache.Get(context.Background())

	assert.ErrorIs(t, err, models.ErrCorruptModel)
	_, loaded := cache.Peek()
	assert.False(t, loaded)
}

func TestCache_WaiterContextCancelled(t *testing.T) {
	source := &countingSource{gate: make(chan struct{})}
	cache := New(source, &countingParser{}, Options{ScratchDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Get(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, models.ErrModelLoad)

	close(source.gate)
	require.Eventually(t, func() bool {
		_, ok := cache.Peek()
		return ok
	}, time.Second, time.Millisecond)
}

func TestCache_CloseReleasesModel(t *testing.T) {
	cache := New(&countingSource{}, &countingParser{}, Options{ScratchDir: t.TempDir()})
	model, err := cache.Get(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.Close())

	assert.True(t, model.(*fakeModel).closed.Load())
	_, loaded := cache.Peek()
	assert.False(t, loaded)
}

func TestCache_CloseDuringLoadReleasesLoadedModel(t *testing.T) {
	source := &countingSource{gate: make(chan struct{})}
	parser := &countingParser{}
	cache := New(source, parser, Options{ScratchDir: t.TempDir()})

	errCh := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool { return source.fetches.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, cache.Close())
	close(source.gate)

	err := <-errCh
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.Equal(t, models.CategoryModelUnavailable, models.CategoryOf(err))
	require.NotNil(t, parser.last.Load())
	assert.True(t, parser.last.Load().closed.Load())
	_, loaded := cache.Peek()
	assert.False(t, loaded)

	_, err = cache.Get(context.Background())
	assert.ErrorIs(t, err, ErrCacheClosed)
}
