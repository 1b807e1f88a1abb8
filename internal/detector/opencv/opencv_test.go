package opencv

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"proctor-service/internal/detector"
)

func TestLoadCascadeMissingFile(t *testing.T) {
	_, err := LoadCascade(filepath.Join(t.TempDir(), "haarcascade_frontalface_default.xml"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestLoadYOLOMissingFile(t *testing.T) {
	_, err := LoadYOLO(filepath.Join(t.TempDir(), "yolov8n.onnx"), detector.COCOLabels, DefaultYOLOConfig())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestLoadYOLORequiresLabels(t *testing.T) {
	weights := filepath.Join(t.TempDir(), "yolov8n.onnx")
	test.That(t, os.WriteFile(weights, []byte("stub"), 0o644), test.ShouldBeNil)
	_, err := LoadYOLO(weights, nil, DefaultYOLOConfig())
	test.That(t, err.Error(), test.ShouldContainSubstring, "no labels")
}

func TestDefaultYOLOConfig(t *testing.T) {
	cfg := DefaultYOLOConfig()
	test.That(t, cfg.InputSize, test.ShouldEqual, detector.InputSize)
	test.That(t, float64(cfg.ScoreThreshold), test.ShouldEqual, detector.ConfidenceThreshold)
}
