package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"proctor-service/internal/detector"
	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/frame"
)

type YOLOConfig struct {
	InputSize      int
	ScoreThreshold float32
	NMSThreshold   float32
}

func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		InputSize:      detector.InputSize,
		ScoreThreshold: detector.ConfidenceThreshold,
		NMSThreshold:   0.45,
	}
}

// YOLO runs a YOLOv8-style ONNX export through OpenCV's dnn module.
// cv::dnn::Net keeps per-forward state, so one forward pass runs at a time.
type YOLO struct {
	mu     sync.Mutex
	net    gocv.Net
	labels []string
	cfg    YOLOConfig
}

func LoadYOLO(weightsPath string, labels []string, cfg YOLOConfig) (*YOLO, error) {
	if _, err := os.Stat(weightsPath); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels for %s", weightsPath)
	}
	net := gocv.ReadNetFromONNX(weightsPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to read ONNX network from %s", weightsPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLO{net: net, labels: labels, cfg: cfg}, nil
}

func (y *YOLO) Labels() []string {
	return y.labels
}

// Infer expects an RGB image already at the network input size; boxes are reported
// in that image's coordinates.
func (y *YOLO) Infer(_ context.Context, img *frame.Image) ([]proctor.Detection, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if img.Order != frame.RGB {
		return nil, fmt.Errorf("network expects RGB input, got %s", img.Order)
	}

	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Pix)
	if err != nil {
		return nil, fmt.Errorf("input mat: %w", err)
	}
	defer mat.Close()

	size := image.Pt(y.cfg.InputSize, y.cfg.InputSize)
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	y.mu.Lock()
	defer y.mu.Unlock()

	y.net.SetInput(blob, "")
	out := y.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return nil, fmt.Errorf("network produced no output")
	}

	scale := image.Pt(img.Width, img.Height)
	return y.decode(out, scale)
}

func (y *YOLO) decode(out gocv.Mat, imgSize image.Point) ([]proctor.Detection, error) {
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output tensor: %w", err)
	}
	return decodeYOLO(data, out.Size(), imgSize, y.labels, y.cfg, gocv.NMSBoxes)
}

func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.net.Close()
}
