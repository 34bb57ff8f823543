package classification

// Tensor is a dense NHWC float32 image tensor with a batch of one.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(height, width int) *Tensor {
	return &Tensor{
		Shape: []int64{1, int64(height), int64(width), Channels},
		Data:  make([]float32, height*width*Channels),
	}
}

func (t *Tensor) Height() int { return int(t.Shape[1]) }

func (t *Tensor) Width() int { return int(t.Shape[2]) }

// At returns the value at row y, column x, channel c.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width()+x)*Channels+c]
}

// ScoreVector holds one score per class label, in label order.
type ScoreVector []float32
