// Package registry loads the detection models once at startup and hands them out
// read-only for the life of the process.
package registry

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"proctor-service/internal/detector"
	"proctor-service/internal/detector/opencv"
	"proctor-service/internal/service"
)

type Config struct {
	Dir     string
	Cascade string
	Weights string
	// Labels is an optional newline-delimited vocabulary; empty means COCO-80.
	Labels string
}

func (c Config) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, name)
}

// StartupError means the process must not serve traffic.
type StartupError struct {
	Resource string
	Path     string
	Err      error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("load %s from %q: %v", e.Resource, e.Path, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Models holds the loaded detectors. It is immutable after Load.
type Models struct {
	Objects *detector.ObjectDetector
	Faces   *detector.FaceDetector
	closers []io.Closer
}

// Load reads the cascade definition, the label vocabulary and the object detector
// weights. The first failure is returned and anything already loaded is released.
func Load(cfg Config, log zerolog.Logger) (_ *Models, err error) {
	m := &Models{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, m.Close())
		}
	}()

	cascadePath := cfg.resolve(cfg.Cascade)
	cascade, err := opencv.LoadCascade(cascadePath)
	if err != nil {
		return nil, &StartupError{Resource: "face cascade", Path: cascadePath, Err: err}
	}
	m.closers = append(m.closers, cascade)

	faces, err := detector.NewFaceDetector(cascade)
	if err != nil {
		return nil, &StartupError{Resource: "face cascade", Path: cascadePath, Err: err}
	}

	labelsPath := cfg.resolve(cfg.Labels)
	labels, err := detector.LoadLabels(labelsPath)
	if err != nil {
		return nil, &StartupError{Resource: "labels", Path: labelsPath, Err: err}
	}

	weightsPath := cfg.resolve(cfg.Weights)
	net, err := opencv.LoadYOLO(weightsPath, labels, opencv.DefaultYOLOConfig())
	if err != nil {
		return nil, &StartupError{Resource: "object detector weights", Path: weightsPath, Err: err}
	}
	m.closers = append(m.closers, net)

	objects, err := detector.NewObjectDetector(net)
	if err != nil {
		return nil, &StartupError{Resource: "object detector weights", Path: weightsPath, Err: err}
	}

	m.Objects = objects
	m.Faces = faces

	log.Info().
		Str("cascade", cascadePath).
		Str("weights", weightsPath).
		Int("classes", len(net.Labels())).
		Float64("confidence_threshold", detector.ConfidenceThreshold).
		Msg("detection models loaded")

	return m, nil
}

// Detectors exposes the models through the analyzer's contracts.
func (m *Models) Detectors() service.DetectorModels {
	return service.DetectorModels{Objects: m.Objects, Faces: m.Faces}
}

func (m *Models) Close() error {
	var err error
	for i := len(m.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, m.closers[i].Close())
	}
	m.closers = nil
	return err
}
