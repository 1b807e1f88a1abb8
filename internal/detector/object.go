package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/frame"
)

const (
	// ConfidenceThreshold is applied by the detector itself; callers never see lower scores.
	ConfidenceThreshold = 0.25
	// InputSize is the square resolution the object model was exported with.
	InputSize = 640
)

// Resizer scales an image to size.
type Resizer func(img *frame.Image, size image.Point) (*frame.Image, error)

// ColorConverter reorders an image's channels to order.
type ColorConverter func(img *frame.Image, order frame.ColorOrder) (*frame.Image, error)

// Inferencer runs a learned model over an image that is already resized and in model order.
type Inferencer interface {
	Infer(ctx context.Context, img *frame.Image) ([]proctor.Detection, error)
}

// InferenceFunc adapts a plain function to Inferencer.
type InferenceFunc func(ctx context.Context, img *frame.Image) ([]proctor.Detection, error)

func (f InferenceFunc) Infer(ctx context.Context, img *frame.Image) ([]proctor.Detection, error) {
	return f(ctx, img)
}

// ObjectDetector runs resize -> color conversion -> inference -> score filter, in that
// order, stopping at the first failing stage.
type ObjectDetector struct {
	inputSize  image.Point
	modelOrder frame.ColorOrder
	resize     Resizer
	convert    ColorConverter
	infer      Inferencer
	filter     Postprocessor
}

type ObjectOption func(*ObjectDetector)

func WithResizer(r Resizer) ObjectOption {
	return func(d *ObjectDetector) { d.resize = r }
}

func WithColorConverter(c ColorConverter) ObjectOption {
	return func(d *ObjectDetector) { d.convert = c }
}

// WithModelOrder sets the channel order the model was trained on (RGB by default).
func WithModelOrder(order frame.ColorOrder) ObjectOption {
	return func(d *ObjectDetector) { d.modelOrder = order }
}

// WithPostprocessor appends pp after the confidence filter.
func WithPostprocessor(pp Postprocessor) ObjectOption {
	return func(d *ObjectDetector) { d.filter = Chain(d.filter, pp) }
}

func NewObjectDetector(infer Inferencer, opts ...ObjectOption) (*ObjectDetector, error) {
	if infer == nil {
		return nil, errors.New("object detector must have an Inferencer")
	}
	d := &ObjectDetector{
		inputSize:  image.Pt(InputSize, InputSize),
		modelOrder: frame.RGB,
		resize:     ResizeBilinear,
		convert:    ConvertColor,
		infer:      infer,
		filter:     NewScoreFilter(ConfidenceThreshold),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect returns every above-threshold detection regardless of label.
func (d *ObjectDetector) Detect(ctx context.Context, img *frame.Image) ([]proctor.Detection, error) {
	var resized, converted *frame.Image
	var detections []proctor.Detection

	if err := guard(proctor.StageResize, func() (err error) {
		resized, err = d.resize(img, d.inputSize)
		return err
	}); err != nil {
		return nil, err
	}

	if err := guard(proctor.StageColorConversion, func() (err error) {
		converted, err = d.convert(resized, d.modelOrder)
		return err
	}); err != nil {
		return nil, err
	}

	if err := guard(proctor.StageObjectDetection, func() (err error) {
		detections, err = d.infer.Infer(ctx, converted)
		return err
	}); err != nil {
		return nil, err
	}

	return d.filter(detections), nil
}

// ResizeBilinear scales with bilinear interpolation and keeps the source channel order.
func ResizeBilinear(img *frame.Image, size image.Point) (*frame.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", size.X, size.Y)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return frame.FromImage(dst, img.Order), nil
}

// ConvertColor reorders channels into order.
func ConvertColor(img *frame.Image, order frame.ColorOrder) (*frame.Image, error) {
	return img.Convert(order)
}

// guard runs one pipeline stage, tagging plain errors and recovered panics with stage.
// A ProcessingError raised inside the stage keeps its own tag.
func guard(stage proctor.Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = proctor.NewProcessingError(stage, fmt.Errorf("panic: %v", r))
		}
	}()
	if err = fn(); err != nil {
		var procErr *proctor.ProcessingError
		if errors.As(err, &procErr) {
			return procErr
		}
		return proctor.NewProcessingError(stage, err)
	}
	return nil
}
