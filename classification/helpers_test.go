package classification

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidRGBA(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

type stubModel struct {
	shape  []int64
	scores []float32
	err    error
	calls  int
}

func newStubModel(height, width int, scores []float32) *stubModel {
	return &stubModel{shape: []int64{1, int64(height), int64(width), Channels}, scores: scores}
}

func (m *stubModel) InputShape() []int64 { return m.shape }

func (m *stubModel) OutputWidth() int { return len(m.scores) }

func (m *stubModel) Predict(_ context.Context, _ []float32) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, len(m.scores))
	copy(out, m.scores)
	return out, nil
}

type stubProvider struct {
	model Model
	err   error
	calls int
}

func (p *stubProvider) Get(context.Context) (Model, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.model, nil
}
