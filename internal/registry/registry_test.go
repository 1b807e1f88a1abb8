package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"go.viam.com/test"
)

func TestConfigResolve(t *testing.T) {
	cfg := Config{Dir: "models"}
	test.That(t, cfg.resolve("yolov8n.onnx"), test.ShouldEqual, filepath.Join("models", "yolov8n.onnx"))
	test.That(t, cfg.resolve("/opt/models/yolov8n.onnx"), test.ShouldEqual, "/opt/models/yolov8n.onnx")
	test.That(t, cfg.resolve(""), test.ShouldEqual, "")
}

func TestLoadFailsFastOnMissingCascade(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Config{
		Dir:     dir,
		Cascade: "haarcascade_frontalface_default.xml",
		Weights: "yolov8n.onnx",
	}, zerolog.Nop())
	test.That(t, err, test.ShouldNotBeNil)

	var startupErr *StartupError
	test.That(t, errors.As(err, &startupErr), test.ShouldBeTrue)
	test.That(t, startupErr.Resource, test.ShouldEqual, "face cascade")
	test.That(t, startupErr.Path, test.ShouldEqual, filepath.Join(dir, "haarcascade_frontalface_default.xml"))
	test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)
}

func TestStartupErrorMessage(t *testing.T) {
	err := &StartupError{Resource: "labels", Path: "models/labels.txt", Err: errors.New("no such file")}
	test.That(t, err.Error(), test.ShouldEqual, `load labels from "models/labels.txt": no such file`)
}

func TestCloseEmptyModels(t *testing.T) {
	m := &Models{}
	test.That(t, m.Close(), test.ShouldBeNil)
}
