package onnxmodel

import (
	"fmt"
	"os"

	"github.com/Tutortoise/image-classification-service/models"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelSession is one onnxruntime session with its bound input and output
// tensors. It is not safe for concurrent use; the pool hands out one at a time.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

type sessionSpec struct {
	modelData      []byte
	inputName      string
	outputName     string
	inputShape     []int64
	outputShape    []int64
	intraOpThreads int
}

// newSessionSpec reads the artifact at path so sessions never depend on the
// file outliving the load.
func newSessionSpec(path, inputName, outputName string, inputShape, outputShape []int64, intraOpThreads int) (sessionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		kind := models.ErrCorruptModel
		if os.IsNotExist(err) {
			kind = models.ErrNotFound
		}
		return sessionSpec{}, models.ModelUnavailableError(models.StageModelLoad, kind, err)
	}
	if len(data) == 0 {
		return sessionSpec{}, models.ModelUnavailableError(models.StageModelLoad, models.ErrCorruptModel,
			fmt.Errorf("model artifact is empty"))
	}

	return sessionSpec{
		modelData:      data,
		inputName:      inputName,
		outputName:     outputName,
		inputShape:     inputShape,
		outputShape:    outputShape,
		intraOpThreads: intraOpThreads,
	}, nil
}

func newModelSession(spec sessionSpec) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(spec.intraOpThreads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.inputShape...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.outputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		spec.modelData,
		[]string{spec.inputName},
		[]string{spec.outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}
