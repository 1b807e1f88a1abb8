package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"proctor-service/internal/detector"
	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/frame"
)

type ObjectDetector interface {
	Detect(ctx context.Context, img *frame.Image) ([]proctor.Detection, error)
}

type FaceDetector interface {
	CountFaces(ctx context.Context, img *frame.Image) (int, error)
}

// DetectorModels are the shared, read-only detectors every analysis runs against.
type DetectorModels struct {
	Objects ObjectDetector
	Faces   FaceDetector
}

// Decoder turns an encoded frame into a raster; failures are *proctor.DecodeError.
type Decoder func(proctor.EncodedFrame) (*frame.Image, error)

// FrameAnalyzer decides whether a single frame is compliant. It keeps no state
// between calls and is safe for concurrent use.
type FrameAnalyzer struct {
	decode Decoder
}

func NewFrameAnalyzer() *FrameAnalyzer {
	return &FrameAnalyzer{decode: frame.Decode}
}

// Analyze runs decode -> object detection -> (no phone) face count -> policy.
// The only error returned is proctor.ErrNoImage; every other outcome, including
// failures, is an AnalysisResult.
func (a *FrameAnalyzer) Analyze(ctx context.Context, raw proctor.EncodedFrame, models DetectorModels) (proctor.AnalysisResult, error) {
	if raw.Empty() {
		return proctor.AnalysisResult{}, proctor.ErrNoImage
	}

	img, err := a.decodeFrame(raw)
	if err != nil {
		var decErr *proctor.DecodeError
		if errors.As(err, &decErr) {
			return proctor.DecodeFailure(decErr.Reason), nil
		}
		return proctor.DecodeFailure(proctor.ReasonCorruptImage), nil
	}

	var detections []proctor.Detection
	if err := recoverStage(proctor.StageObjectDetection, func() (err error) {
		detections, err = models.Objects.Detect(ctx, img)
		return err
	}); err != nil {
		return proctor.ResultFromError(err, proctor.StageObjectDetection), nil
	}

	// A phone alone settles the frame; the face scan is skipped.
	if lo.ContainsBy(detections, func(d proctor.Detection) bool { return detector.IsPhone(d.Label) }) {
		return proctor.PhoneDetected(), nil
	}

	var faces int
	if err := recoverStage(proctor.StageFaceDetection, func() (err error) {
		faces, err = models.Faces.CountFaces(ctx, img)
		return err
	}); err != nil {
		return proctor.ResultFromError(err, proctor.StageFaceDetection), nil
	}

	// Several faces are not distinguished from one.
	if faces == 0 {
		return proctor.Suspicious(), nil
	}
	return proctor.Normal(), nil
}

func (a *FrameAnalyzer) decodeFrame(raw proctor.EncodedFrame) (img *frame.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &proctor.DecodeError{Reason: proctor.ReasonCorruptImage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.decode(raw)
}

func recoverStage(stage proctor.Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = proctor.NewProcessingError(stage, fmt.Errorf("panic: %v", r))
		}
	}()
	return fn()
}
