package classification

const (
	Channels   = 3
	PixelScale = 255.0

	DefaultInputHeight = 224
	DefaultInputWidth  = 224
	DefaultTopK        = 3

	// ConfidenceScale rounds confidences to 4 decimal places.
	ConfidenceScale = 1e4
)

// CIFAR10Labels is the label order the bundled models were trained with.
var CIFAR10Labels = []string{
	"airplane", "automobile", "bird", "cat", "deer",
	"dog", "frog", "horse", "ship", "truck",
}
