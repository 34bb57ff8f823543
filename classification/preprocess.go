package classification

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/Tutortoise/image-classification-service/models"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Preprocessor turns encoded image bytes into a model input tensor.
type Preprocessor interface {
	Preprocess(raw []byte, height, width int, timings *models.ProcessingTimings) (*Tensor, error)
}

// ImagePreprocessor decodes, resizes and scales images.
//
// The resize filter is fixed at construction and must match the one used when
// the model was trained. Pixels are only divided by 255: the models served
// here were trained on [0,1] inputs without mean or std normalization.
type ImagePreprocessor struct {
	filter imaging.ResampleFilter
}

func NewImagePreprocessor() *ImagePreprocessor {
	return &ImagePreprocessor{filter: imaging.Linear}
}

func (p *ImagePreprocessor) Preprocess(raw []byte, height, width int, timings *models.ProcessingTimings) (*Tensor, error) {
	if height <= 0 || width <= 0 {
		return nil, models.InternalError(models.StagePreprocess, models.ErrShapeMismatch,
			fmt.Errorf("target size %dx%d", height, width))
	}
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	decodeStart := time.Now()
	img, err := decode(raw)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return nil, models.ClientInputError(models.StagePreprocess, models.ErrDecode, err)
	}

	resizeStart := time.Now()
	resized := imaging.Resize(dropAlpha(img), width, height, p.filter)
	timings.Resize = time.Since(resizeStart)

	prepStart := time.Now()
	tensor := NewTensor(height, width)
	fillTensor(tensor, resized)
	timings.Preprocess = time.Since(prepStart)

	return tensor, nil
}

func decode(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty image")
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("image has no pixels")
	}
	return img, nil
}

// dropAlpha returns an opaque copy of img with the stored colour channels
// untouched, so transparency never weights the resize.
func dropAlpha(img image.Image) *image.NRGBA {
	opaque := imaging.Clone(img)
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}
	return opaque
}

// fillTensor copies RGB from an opaque NRGBA image into tensor.
func fillTensor(tensor *Tensor, pic *image.NRGBA) {
	height, width := tensor.Height(), tensor.Width()
	for y := 0; y < height; y++ {
		row := y * pic.Stride
		offset := y * width * Channels
		for x := 0; x < width; x++ {
			src := row + x*4
			dst := offset + x*Channels
			tensor.Data[dst] = float32(pic.Pix[src]) / PixelScale
			tensor.Data[dst+1] = float32(pic.Pix[src+1]) / PixelScale
			tensor.Data[dst+2] = float32(pic.Pix[src+2]) / PixelScale
		}
	}
}
