package onnxmodel

import (
	"errors"
	"fmt"

	"github.com/Tutortoise/image-classification-service/classification"
	"github.com/Tutortoise/image-classification-service/models"

	ort "github.com/yalue/onnxruntime_go"
)

// Parser loads ONNX image classifiers expecting NHWC float32 input.
type Parser struct {
	InputName      string // empty selects the model's first input
	OutputName     string // empty selects the model's first output
	Height         int
	Width          int
	NumLabels      int
	PoolSize       int
	IntraOpThreads int
}

// Parse validates the model at path against the configured contract and
// opens a session pool for it. The model bytes are kept in memory, so the file
// is not needed once Parse returns and discarded sessions can be recreated.
func (p *Parser) Parse(path string) (classification.Model, error) {
	if !ort.IsInitialized() {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrModelLoad,
			errors.New("onnxruntime environment is not initialized"))
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrCorruptModel, err)
	}

	input, err := selectInfo(inputs, p.InputName, "input")
	if err != nil {
		return nil, err
	}
	output, err := selectInfo(outputs, p.OutputName, "output")
	if err != nil {
		return nil, err
	}

	inputShape, err := resolveInputShape(input.Dimensions, p.Height, p.Width)
	if err != nil {
		return nil, err
	}
	outputShape, err := resolveOutputShape(output.Dimensions, p.NumLabels)
	if err != nil {
		return nil, err
	}

	poolSize := p.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	threads := p.IntraOpThreads
	if threads <= 0 {
		threads = DefaultIntraOpThreads(poolSize)
	}

	spec, err := newSessionSpec(path, input.Name, output.Name, inputShape, outputShape, threads)
	if err != nil {
		return nil, err
	}
	pool, err := NewSessionPool(poolSize, func() (*ModelSession, error) {
		return newModelSession(spec)
	})
	if err != nil {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrCorruptModel, err)
	}

	return &Model{
		pool:        pool,
		inputShape:  inputShape,
		outputWidth: int(outputShape[len(outputShape)-1]),
	}, nil
}

func selectInfo(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, models.ModelUnavailableError(models.StageModelLoad, models.ErrCorruptModel,
			fmt.Errorf("model declares no %ss", kind))
	}

	info := infos[0]
	if name != "" {
		found := false
		for _, candidate := range infos {
			if candidate.Name == name {
				info, found = candidate, true
				break
			}
		}
		if !found {
			return ort.InputOutputInfo{}, models.ModelUnavailableError(models.StageModelLoad, models.ErrShapeMismatch,
				fmt.Errorf("model has no %s named %q", kind, name))
		}
	}

	if info.OrtValueType != ort.ONNXTypeTensor || info.DataType != ort.TensorElementDataTypeFloat {
		return ort.InputOutputInfo{}, models.ModelUnavailableError(models.StageModelLoad, models.ErrShapeMismatch,
			fmt.Errorf("%s %q is not a float32 tensor", kind, info.Name))
	}
	return info, nil
}

// resolveInputShape checks a declared input shape against [1,height,width,3].
// Dynamic dimensions (<= 0) accept the configured size.
func resolveInputShape(declared []int64, height, width int) ([]int64, error) {
	want := []int64{1, int64(height), int64(width), classification.Channels}
	if len(declared) != len(want) {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrShapeMismatch,
			fmt.Errorf("model input %s, want NHWC %v", describeShape(declared), want))
	}
	for i, d := range declared {
		if d > 0 && d != want[i] {
			return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrShapeMismatch,
				fmt.Errorf("model input %s, want NHWC %v", describeShape(declared), want))
		}
	}
	return want, nil
}

// resolveOutputShape checks that the output is one score per label for a
// batch of one, e.g. [1,10] or [?,10].
func resolveOutputShape(declared []int64, numLabels int) ([]int64, error) {
	if len(declared) == 0 {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrShapeMismatch,
			errors.New("model output is a scalar"))
	}

	resolved := make([]int64, len(declared))
	last := len(declared) - 1
	for i, d := range declared[:last] {
		if d > 1 {
			return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrShapeMismatch,
				fmt.Errorf("model output %s has a non-unit leading dimension", describeShape(declared)))
		}
		resolved[i] = 1
	}

	width := declared[last]
	if width <= 0 {
		width = int64(numLabels)
	}
	if int(width) != numLabels {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrLabelMismatch,
			fmt.Errorf("model outputs %d scores for %d labels", width, numLabels))
	}
	resolved[last] = width
	return resolved, nil
}
